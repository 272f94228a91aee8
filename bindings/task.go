package bindings

import (
	"time"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/runtime"
	"github.com/wippyai/wasm-bridge/task"
)

// TaskCollection exposes task identity, environment and sleeping.
type TaskCollection struct {
	collection
	tasks *task.Manager
}

// Task returns the xila_task_* symbols backed by tasks.
func Task(tasks *task.Manager) *TaskCollection {
	c := &TaskCollection{tasks: tasks}
	c.collection = collection{
		name: "xila_task",
		functions: []runtime.FunctionDescriptor{
			{Name: "xila_task_get_identifier", Signature: "(*)i", Function: c.getIdentifier},
			{Name: "xila_task_sleep", Signature: "(I)i", Function: c.sleep},
			{Name: "xila_task_get_environment_variable", Signature: "(*~*~*)i", Function: c.getEnvironmentVariable},
			{Name: "xila_task_set_environment_variable", Signature: "(*~*~)i", Function: c.setEnvironmentVariable},
		},
	}
	return c
}

func taskError(op string, err error) error {
	return wrap(errors.KindFailedToGetTaskInformations, op, err)
}

func (c *TaskCollection) getIdentifier(env *runtime.Environment, stack []uint64) {
	finish(stack, "xila_task_get_identifier", func() error {
		data, err := customData(env)
		if err != nil {
			return err
		}
		return env.WriteUint32(uint32(stack[0]), uint32(data.task))
	})
}

// sleep takes a duration in milliseconds.
func (c *TaskCollection) sleep(env *runtime.Environment, stack []uint64) {
	finish(stack, "xila_task_sleep", func() error {
		ms := stack[0]
		if ms > uint64(time.Duration(1<<63-1)/time.Millisecond) {
			return errors.InvalidArgument("sleep duration overflows")
		}
		return wrap(errors.KindExecutionError, "sleep", task.Sleep(env.Context(), time.Duration(ms)*time.Millisecond))
	})
}

// getEnvironmentVariable copies the value into the buffer and stores the
// full value length, so guests can retry with a larger buffer.
func (c *TaskCollection) getEnvironmentVariable(env *runtime.Environment, stack []uint64) {
	finish(stack, "xila_task_get_environment_variable", func() error {
		data, err := customData(env)
		if err != nil {
			return err
		}
		name, err := env.ReadString(uint32(stack[0]), uint32(stack[1]))
		if err != nil {
			return err
		}
		buf, err := env.TranslateSliceToHost(uint32(stack[2]), uint32(stack[3]))
		if err != nil {
			return err
		}
		out := uint32(stack[4])
		if err := output(env, out, 4); err != nil {
			return err
		}

		value, err := c.tasks.GetEnvironmentVariable(data.task, name)
		if err != nil {
			return taskError("get_environment_variable "+name, err)
		}
		copy(buf, value)
		if err := env.WriteUint32(out, uint32(len(value))); err != nil {
			return err
		}
		if len(value) > len(buf) {
			return errors.InvalidArgument("value buffer too small")
		}
		return nil
	})
}

func (c *TaskCollection) setEnvironmentVariable(env *runtime.Environment, stack []uint64) {
	finish(stack, "xila_task_set_environment_variable", func() error {
		data, err := customData(env)
		if err != nil {
			return err
		}
		name, err := env.ReadString(uint32(stack[0]), uint32(stack[1]))
		if err != nil {
			return err
		}
		value, err := env.ReadString(uint32(stack[2]), uint32(stack[3]))
		if err != nil {
			return err
		}
		if err := c.tasks.SetEnvironmentVariable(data.task, name, value); err != nil {
			return wrap(errors.KindInvalidArgument, "set_environment_variable "+name, err)
		}
		return nil
	})
}
