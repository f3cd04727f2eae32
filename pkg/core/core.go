// Package core wires up the clients every handler needs: secrets, auth,
// and file storage.
package core

import (
	"context"

	firebase "firebase.google.com/go/v4"
	"github.com/lumen-search/backend/cfg/secr"
	"github.com/lumen-search/backend/pkg/services/authfirebase"
	"github.com/lumen-search/backend/pkg/services/filestorage"
)

type Client struct {
	Secr        *secr.Client
	Auth        *authfirebase.Client
	FileStorage *filestorage.Client
}

func NewClient(ctx context.Context) (*Client, error) {
	secrClient, err := secr.Setup(ctx)
	if err != nil {
		return nil, err
	}
	app, err := firebase.NewApp(ctx, nil)
	if err != nil {
		return nil, err
	}
	auth, err := app.Auth(ctx)
	if err != nil {
		return nil, err
	}
	fsClient, err := filestorage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Client{
		Secr:        secrClient,
		Auth:        authfirebase.NewClient(auth),
		FileStorage: fsClient,
	}, nil
}
