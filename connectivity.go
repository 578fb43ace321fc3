// CLAUDE:SUMMARY Connectivity handlers exposing tabkeeper sessions to in-process and transport-routed callers.
package tabkeeper

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/tabkeeper/connectivity"
)

// RegisterConnectivity registers tabkeeper services on a connectivity
// router, for hosts that embed the keeper next to other services:
//   - tabkeeper_resolve: get-or-create a named page
//   - tabkeeper_list: list live pages
//   - tabkeeper_close: close a named page
//   - tabkeeper_snapshot: capture an accessibility snapshot
//   - tabkeeper_navigate: drive a page to a URL
//   - tabkeeper_action: click or type on a snapshot ref
//   - tabkeeper_status: daemon health
func (k *Keeper) RegisterConnectivity(router *connectivity.Router) {
	router.RegisterLocal("tabkeeper_resolve", k.handleResolve)
	router.RegisterLocal("tabkeeper_list", k.handleList)
	router.RegisterLocal("tabkeeper_close", k.handleClose)
	router.RegisterLocal("tabkeeper_snapshot", k.handleSnapshot)
	router.RegisterLocal("tabkeeper_navigate", k.handleNavigate)
	router.RegisterLocal("tabkeeper_action", k.handleAction)
	router.RegisterLocal("tabkeeper_status", k.handleStatus)
}

func (k *Keeper) handleResolve(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	info, created, err := k.ResolvePage(ctx, req.Name)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		*PageInfo
		Created bool `json:"created"`
	}{info, created})
}

func (k *Keeper) handleList(ctx context.Context, payload []byte) ([]byte, error) {
	return json.Marshal(struct {
		Pages []*PageInfo `json:"pages"`
	}{k.ListPages(ctx)})
}

func (k *Keeper) handleClose(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := k.ClosePage(ctx, req.Name); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"status": "closed", "name": req.Name})
}

func (k *Keeper) handleSnapshot(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	res, err := k.Snapshot(ctx, req.Name)
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

func (k *Keeper) handleNavigate(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	info, err := k.Navigate(ctx, req.Name, req.URL)
	if err != nil {
		return nil, err
	}
	return json.Marshal(info)
}

func (k *Keeper) handleAction(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		Name   string `json:"name"`
		Action string `json:"action"`
		Ref    string `json:"ref"`
		Text   string `json:"text"`
		Submit bool   `json:"submit"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	var (
		res *ActionResult
		err error
	)
	switch req.Action {
	case "click":
		res, err = k.Click(ctx, req.Name, req.Ref)
	case "type":
		res, err = k.Type(ctx, req.Name, req.Ref, req.Text, req.Submit)
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidInput, req.Action)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

func (k *Keeper) handleStatus(ctx context.Context, payload []byte) ([]byte, error) {
	return json.Marshal(k.Status(ctx))
}
