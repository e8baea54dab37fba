package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Tyrowin/roomchat/internal/gateway"
)

var errUnknownEvent = errors.New("unknown event")

// eventHandler runs one inbound event for c. A nil reply means the event
// produces no synchronous answer.
type eventHandler func(c *Client, data json.RawMessage) (any, error)

// dispatcher routes decoded frames to the gateway by event name.
type dispatcher struct {
	handlers map[string]eventHandler
	logger   *slog.Logger
}

func newDispatcher(gw *gateway.Gateway, logger *slog.Logger) *dispatcher {
	d := &dispatcher{
		handlers: make(map[string]eventHandler),
		logger:   logger,
	}

	d.register(gateway.EventJoinRoom, func(c *Client, data json.RawMessage) (any, error) {
		var p gateway.JoinRoomPayload
		if err := decodePayload(data, &p); err != nil {
			return nil, err
		}
		return gw.JoinRoom(c.ID(), p)
	})

	d.register(gateway.EventSendMessage, func(c *Client, data json.RawMessage) (any, error) {
		var p gateway.SendMessagePayload
		if err := decodePayload(data, &p); err != nil {
			return nil, err
		}
		ack, err := gw.SendMessage(c.ID(), p)
		if ack == nil {
			return nil, err
		}
		return ack, err
	})

	d.register(gateway.EventLeaveRoom, func(c *Client, _ json.RawMessage) (any, error) {
		ack, err := gw.LeaveRoom(c.ID())
		if ack == nil {
			return nil, err
		}
		return ack, err
	})

	return d
}

func (d *dispatcher) register(event string, h eventHandler) {
	d.handlers[event] = h
}

// dispatch decodes one raw frame, runs it and queues the reply on c.
// Rejections are answered with an error frame and change no state.
func (d *dispatcher) dispatch(c *Client, raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		d.reject(c, "", fmt.Errorf("%w: %v", gateway.ErrMalformedPayload, err))
		return
	}

	h, ok := d.handlers[frame.Event]
	if !ok {
		d.reject(c, frame.ID, fmt.Errorf("%w %q", errUnknownEvent, frame.Event))
		return
	}

	reply, err := h(c, frame.Data)
	switch {
	case errors.Is(err, gateway.ErrConnectionClosed):
		return
	case err != nil:
		d.reject(c, frame.ID, err)
		return
	case reply == nil:
		return
	}

	d.reply(c, gateway.EventAck, frame.ID, reply)
}

func (d *dispatcher) reject(c *Client, id string, err error) {
	d.logger.Debug("rejected inbound event", "conn_id", c.ID(), "addr", c.addr, "error", err)
	d.reply(c, gateway.EventError, id, gateway.Ack{Status: gateway.StatusError, Message: err.Error()})
}

func (d *dispatcher) reply(c *Client, event, id string, body any) {
	frame, err := gateway.EncodeFrame(event, id, body)
	if err != nil {
		d.logger.Error("failed to encode reply", "conn_id", c.ID(), "error", err)
		return
	}
	if err := c.Send(frame); err != nil {
		d.logger.Warn("failed to queue reply", "conn_id", c.ID(), "error", err)
	}
}

// decodePayload unmarshals a required payload body.
func decodePayload(data json.RawMessage, v any) error {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return fmt.Errorf("%w: data is required", gateway.ErrMalformedPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", gateway.ErrMalformedPayload, err)
	}
	return nil
}
