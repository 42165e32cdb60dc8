package status

import (
	"context"
	"errors"
	"strings"

	"hivescan/internal/app/ports"
)

var ErrInvalidRequest = errors.New("invalid status request")

type UseCase struct {
	Registry *Registry
}

func (u UseCase) Execute(_ context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.WorkerID) == "" {
		return Response{}, ErrInvalidRequest
	}
	if u.Registry == nil {
		return Response{}, ports.ErrNotFound
	}
	st, ok := u.Registry.Get(req.WorkerID)
	if !ok {
		return Response{}, ports.ErrNotFound
	}
	return Response{Status: st}, nil
}
