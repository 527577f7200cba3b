package zookeeper

import "testing"

func TestPredecessor(t *testing.T) {
	children := []string{
		"_c_9f1e-lock-0000000003",
		"_c_0a2b-lock-0000000001",
		"_c_ffff-lock-0000000002",
	}
	tests := []struct {
		self    string
		want    string
		wantErr bool
	}{
		{self: "_c_0a2b-lock-0000000001", want: ""},
		{self: "_c_ffff-lock-0000000002", want: "_c_0a2b-lock-0000000001"},
		// 随机前缀更小也不能越过序号更小的节点
		{self: "_c_9f1e-lock-0000000003", want: "_c_ffff-lock-0000000002"},
		{self: "_c_dead-lock-0000000009", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.self, func(t *testing.T) {
			got, err := predecessor(children, tt.self)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("predecessor = %q, want %q", got, tt.want)
			}
		})
	}
}
