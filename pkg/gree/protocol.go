package gree

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Bind performs the one-time pairing handshake and returns the
// device-specific key used for all later traffic. If key is non-empty
// the device is treated as already bound and it is returned verbatim
// with no network access; callers that persisted a key across restarts
// use this path. A handshake that gets no answer fails with
// ErrBindTimeout.
//
// The caller owns the returned key; nothing here persists it.
func Bind(ctx context.Context, info DeviceInfo, key string, opts ...Option) (string, error) {
	cfg, err := applyOptions(opts)
	if err != nil {
		return "", err
	}

	if key != "" {
		return key, nil
	}

	cfg.logger.Info().Str("mac", info.MAC).Msg("binding to device")

	var resp bindOKPayload
	err = exchange(ctx, cfg, info, 1, bindRequest{Mac: info.MAC, T: typeBind}, GenericKey, &resp)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return "", fmt.Errorf("%w: %w", ErrBindTimeout, err)
		}
		return "", err
	}

	if resp.T != typeBindOK || resp.Key == "" {
		return "", fmt.Errorf("%w: expected %s, got %q", ErrProtocol, typeBindOK, resp.T)
	}
	return resp.Key, nil
}

// RequestState queries the named properties and returns them zipped
// into a PropertyMap. The response's name and value lists must be
// position-paired and of equal length, or the result is ErrProtocol.
func RequestState(ctx context.Context, names []string, info DeviceInfo, key string, opts ...Option) (PropertyMap, error) {
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, ErrNotBound
	}

	var resp statusResponse
	err = exchange(ctx, cfg, info, 0, statusRequest{Cols: names, Mac: info.MAC, T: typeStatus}, key, &resp)
	if err != nil {
		return nil, err
	}

	// Firmware revisions disagree on echoing the type discriminator;
	// reject it only when present and wrong.
	if resp.T != "" && resp.T != typeStatusData {
		return nil, fmt.Errorf("%w: expected %s, got %q", ErrProtocol, typeStatusData, resp.T)
	}
	return zipProperties(resp.Cols, resp.Dat)
}

// SendState pushes the given properties to the device and returns the
// acknowledged values zipped into a PropertyMap. Devices may coerce or
// clamp values, so the result is authoritative over the input.
func SendState(ctx context.Context, props PropertyMap, info DeviceInfo, key string, opts ...Option) (PropertyMap, error) {
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, ErrNotBound
	}

	names := props.sortedNames()
	values := make([]any, len(names))
	for i, name := range names {
		values[i] = props[name]
	}

	var resp commandResponse
	err = exchange(ctx, cfg, info, 0, commandRequest{Opt: names, P: values, T: typeCommand}, key, &resp)
	if err != nil {
		return nil, err
	}
	return zipProperties(resp.Opt, resp.Val)
}

// exchange performs exactly one request/response round trip on a fresh
// point-to-point stream: encrypt, send, await one datagram within the
// window, unwrap and decrypt into out. No retries; every failure
// surfaces as a distinct error kind for the caller to act on.
//
// Responses are correlated by arrival order, not by request id, so one
// exchange per device must be in flight at a time; Device serializes
// its own calls, concurrent exchanges to different devices use
// independent sockets and never interfere.
func exchange(ctx context.Context, cfg *config, info DeviceInfo, flag int, payload any, key string, out any) error {
	raddr, err := info.udpAddr(cfg.port)
	if err != nil {
		return err
	}

	stream, err := newPeerStream(raddr, cfg.logger)
	if err != nil {
		return err
	}
	defer stream.Close()

	pack, err := encryptPayload(payload, key)
	if err != nil {
		return err
	}

	request, err := json.Marshal(packet{
		Cid:  clientID,
		I:    flag,
		T:    typePack,
		UID:  0,
		TCP:  tcpMarker,
		Pack: pack,
	})
	if err != nil {
		return err
	}

	if err := stream.Send(request, nil); err != nil {
		return err
	}
	cfg.logger.Debug().Str("device", raddr.String()).Msg("request sent")

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	data, _, err := stream.Recv(ctx)
	if err != nil {
		return err
	}

	var reply packet
	if err := json.Unmarshal(data, &reply); err != nil {
		return fmt.Errorf("%w: malformed envelope: %w", ErrProtocol, err)
	}
	if reply.Pack == "" {
		return fmt.Errorf("%w: response carries no payload", ErrProtocol)
	}

	return decryptPayload(reply.Pack, key, out)
}
