package bindings

import (
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/graphics"
	"github.com/wippyai/wasm-bridge/resource"
	"github.com/wippyai/wasm-bridge/runtime"
)

// GraphicsCollection exposes the widget tree. Guests refer to widgets by
// handles from the instance's TranslationMap; the toolkit lock is held
// for the whole of every call.
type GraphicsCollection struct {
	collection
	toolkit *graphics.Toolkit
}

// Graphics returns the xila_graphics_* symbols backed by toolkit.
func Graphics(toolkit *graphics.Toolkit) *GraphicsCollection {
	c := &GraphicsCollection{toolkit: toolkit}
	c.collection = collection{
		name: "xila_graphics",
		functions: []runtime.FunctionDescriptor{
			{Name: "xila_graphics_get_screen", Signature: "(*)i", Function: c.getScreen},
			{Name: "xila_graphics_create_object", Signature: "(ii*)i", Function: c.createObject},
			{Name: "xila_graphics_delete_object", Signature: "(i)i", Function: c.deleteObject},
			{Name: "xila_graphics_set_text", Signature: "(i*~)i", Function: c.setText},
			{Name: "xila_graphics_get_child_count", Signature: "(i*)i", Function: c.getChildCount},
		},
	}
	return c
}

func graphicsError(op string, err error) error {
	return wrap(errors.KindGraphics, op, err)
}

// issue hands o to the guest, writing its handle to out.
func issue(env *runtime.Environment, data *CustomData, o *graphics.Object, out uint32) error {
	slot, err := data.handles.Insert(data.task, o)
	if err != nil {
		return err
	}
	return env.WriteUint32(out, uint32(slot))
}

func (c *GraphicsCollection) getScreen(env *runtime.Environment, stack []uint64) {
	finish(stack, "xila_graphics_get_screen", func() error {
		data, err := customData(env)
		if err != nil {
			return err
		}
		out := uint32(stack[0])
		if err := output(env, out, 4); err != nil {
			return err
		}

		c.toolkit.Lock()
		defer c.toolkit.Unlock()
		return issue(env, data, c.toolkit.Screen(), out)
	})
}

func (c *GraphicsCollection) createObject(env *runtime.Environment, stack []uint64) {
	finish(stack, "xila_graphics_create_object", func() error {
		data, err := customData(env)
		if err != nil {
			return err
		}
		parent, err := handle[graphics.Object](data, stack[1])
		if err != nil {
			return err
		}
		out := uint32(stack[2])
		if err := output(env, out, 4); err != nil {
			return err
		}

		c.toolkit.Lock()
		defer c.toolkit.Unlock()

		o, err := c.toolkit.CreateObject(graphics.Kind(stack[0]), parent)
		if err != nil {
			return graphicsError("create_object", err)
		}
		if err := issue(env, data, o, out); err != nil {
			_, _ = c.toolkit.DeleteObject(o)
			return err
		}
		return nil
	})
}

// deleteObject removes the widget subtree and every handle pointing into it.
func (c *GraphicsCollection) deleteObject(env *runtime.Environment, stack []uint64) {
	finish(stack, "xila_graphics_delete_object", func() error {
		data, err := customData(env)
		if err != nil {
			return err
		}
		o, err := handle[graphics.Object](data, stack[0])
		if err != nil {
			return err
		}

		c.toolkit.Lock()
		defer c.toolkit.Unlock()

		removed, err := c.toolkit.DeleteObject(o)
		if err != nil {
			return graphicsError("delete_object", err)
		}
		for _, r := range removed {
			if slot, err := data.handles.WasmPointer(data.task, r); err == nil {
				_, _ = resource.Remove[graphics.Object](data.handles, data.task, slot)
			}
		}
		return nil
	})
}

func (c *GraphicsCollection) setText(env *runtime.Environment, stack []uint64) {
	finish(stack, "xila_graphics_set_text", func() error {
		data, err := customData(env)
		if err != nil {
			return err
		}
		o, err := handle[graphics.Object](data, stack[0])
		if err != nil {
			return err
		}
		text, err := env.ReadString(uint32(stack[1]), uint32(stack[2]))
		if err != nil {
			return err
		}

		c.toolkit.Lock()
		defer c.toolkit.Unlock()
		return graphicsError("set_text", c.toolkit.SetText(o, text))
	})
}

func (c *GraphicsCollection) getChildCount(env *runtime.Environment, stack []uint64) {
	finish(stack, "xila_graphics_get_child_count", func() error {
		data, err := customData(env)
		if err != nil {
			return err
		}
		o, err := handle[graphics.Object](data, stack[0])
		if err != nil {
			return err
		}
		out := uint32(stack[1])
		if err := output(env, out, 4); err != nil {
			return err
		}

		c.toolkit.Lock()
		defer c.toolkit.Unlock()

		children, err := c.toolkit.Children(o)
		if err != nil {
			return graphicsError("get_child_count", err)
		}
		return env.WriteUint32(out, uint32(len(children)))
	})
}
