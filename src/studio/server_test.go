package studio

import (
	"testing"

	"imagestudio-server-go/src/task"
)

func TestTaskTypeFor(t *testing.T) {
	tests := []struct {
		op        string
		taskType  task.TaskType
		expectErr bool
	}{
		{op: "generate", taskType: task.TaskTypeImageGen},
		{op: "restyle", taskType: task.TaskTypeImageEdit},
		{op: "inpaint", taskType: task.TaskTypeImageEdit},
		{op: "background", taskType: task.TaskTypeImageEdit},
		{op: "mix", taskType: task.TaskTypeImageEdit},
		{op: "upscale", taskType: task.TaskTypeImageEdit},
		{op: "detect", expectErr: true},
		{op: "unknown", expectErr: true},
		{op: "", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			taskType, err := taskTypeFor(tt.op)
			if tt.expectErr {
				if err == nil {
					t.Errorf("taskTypeFor(%q) 应报错", tt.op)
				}
				return
			}
			if err != nil {
				t.Fatalf("taskTypeFor(%q) 报错: %v", tt.op, err)
			}
			if taskType != tt.taskType {
				t.Errorf("taskTypeFor(%q) = %s, want %s", tt.op, taskType, tt.taskType)
			}
		})
	}
}
