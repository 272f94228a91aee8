package bindings

import (
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/network"
	"github.com/wippyai/wasm-bridge/resource"
	"github.com/wippyai/wasm-bridge/runtime"
)

// addressSize is the guest size of one resolved address, IPv4 addresses
// in their IPv4-mapped IPv6 form.
const addressSize = 16

// NetworkCollection exposes DNS resolution and TCP connections.
type NetworkCollection struct {
	collection
	network *network.Manager
}

// Network returns the xila_network_* symbols backed by manager.
func Network(manager *network.Manager) *NetworkCollection {
	c := &NetworkCollection{network: manager}
	c.collection = collection{
		name: "xila_network",
		functions: []runtime.FunctionDescriptor{
			{Name: "xila_network_resolve", Signature: "(*~*~*)i", Function: c.resolve},
			{Name: "xila_network_connect", Signature: "(*~i*)i", Function: c.connect},
			{Name: "xila_network_send", Signature: "(i*~*)i", Function: c.send},
			{Name: "xila_network_receive", Signature: "(i*~*)i", Function: c.receive},
			{Name: "xila_network_close", Signature: "(i)i", Function: c.close},
		},
	}
	return c
}

func networkError(op string, err error) error {
	return wrap(errors.KindNetwork, op, err)
}

// resolve writes as many 16-byte addresses as fit and stores the count
// written.
func (c *NetworkCollection) resolve(env *runtime.Environment, stack []uint64) {
	finish(stack, "xila_network_resolve", func() error {
		host, err := env.ReadString(uint32(stack[0]), uint32(stack[1]))
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

		ips, err := c.network.Resolve(env.Context(), host)
		if err != nil {
			return networkError("resolve "+host, err)
		}
		count := 0
		for _, ip := range ips {
			if len(buf) < addressSize {
				break
			}
			copy(buf, ip.To16())
			buf = buf[addressSize:]
			count++
		}
		return env.WriteUint32(out, uint32(count))
	})
}

func (c *NetworkCollection) connect(env *runtime.Environment, stack []uint64) {
	finish(stack, "xila_network_connect", func() error {
		data, err := customData(env)
		if err != nil {
			return err
		}
		host, err := env.ReadString(uint32(stack[0]), uint32(stack[1]))
		if err != nil {
			return err
		}
		if stack[2] > 0xFFFF {
			return errors.InvalidArgument("port out of range")
		}
		out := uint32(stack[3])
		if err := output(env, out, 4); err != nil {
			return err
		}

		conn, err := c.network.Connect(env.Context(), host, uint16(stack[2]))
		if err != nil {
			return networkError("connect "+host, err)
		}
		slot, err := data.handles.Insert(data.task, conn)
		if err != nil {
			_ = conn.Close()
			return err
		}
		return env.WriteUint32(out, uint32(slot))
	})
}

func (c *NetworkCollection) send(env *runtime.Environment, stack []uint64) {
	finish(stack, "xila_network_send", func() error {
		data, err := customData(env)
		if err != nil {
			return err
		}
		conn, err := handle[network.Connection](data, stack[0])
		if err != nil {
			return err
		}
		buf, err := env.TranslateSliceToHost(uint32(stack[1]), uint32(stack[2]))
		if err != nil {
			return err
		}
		out := uint32(stack[3])
		if err := output(env, out, 4); err != nil {
			return err
		}

		n, err := conn.Send(buf)
		if err != nil {
			return networkError("send", err)
		}
		return env.WriteUint32(out, uint32(n))
	})
}

func (c *NetworkCollection) receive(env *runtime.Environment, stack []uint64) {
	finish(stack, "xila_network_receive", func() error {
		data, err := customData(env)
		if err != nil {
			return err
		}
		conn, err := handle[network.Connection](data, stack[0])
		if err != nil {
			return err
		}
		buf, err := env.TranslateSliceToHost(uint32(stack[1]), uint32(stack[2]))
		if err != nil {
			return err
		}
		out := uint32(stack[3])
		if err := output(env, out, 4); err != nil {
			return err
		}

		n, err := conn.Receive(buf)
		if err != nil {
			return networkError("receive", err)
		}
		return env.WriteUint32(out, uint32(n))
	})
}

func (c *NetworkCollection) close(env *runtime.Environment, stack []uint64) {
	finish(stack, "xila_network_close", func() error {
		data, err := customData(env)
		if err != nil {
			return err
		}
		if stack[0] > uint64(resource.SlotCount-1) {
			return errors.InvalidArgument("handle out of range")
		}
		conn, err := resource.Remove[network.Connection](data.handles, data.task, resource.Slot(stack[0]))
		if err != nil {
			return err
		}
		return networkError("close", conn.Close())
	})
}
