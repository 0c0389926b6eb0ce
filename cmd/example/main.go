package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/afero"

	"github.com/medvault/passkey/pkg/config"
	"github.com/medvault/passkey/pkg/options"
	"github.com/medvault/passkey/pkg/softauthn"
	"github.com/medvault/passkey/pkg/storage"
	"github.com/medvault/passkey/pkg/workflow"
)

func main() {
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelDebug)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	}))

	ctx := context.Background()

	kv := storage.NewFileStore(afero.NewMemMapFs(), "credentials.json")
	authenticator := softauthn.New(options.WithLogger(logger))

	wf := workflow.New(authenticator, kv,
		options.WithLogger(logger),
		options.WithRelyingParty(config.NewRelyingPartyConfig("MedVault", "records.medvault.example", "")),
	)
	wf.Refresh(ctx)

	fmt.Printf("Supported: %t\n", wf.IsSupported())
	fmt.Printf("Available: %t\n", wf.IsAvailable())
	fmt.Printf("Registered: %t\n", wf.IsRegistered())

	reg, err := wf.Register(ctx, "user-1", "ada@example.com")
	if err != nil {
		panic(err)
	}
	fmt.Printf("Registered credential: %s\n", reg.CredentialID)

	for i, dev := range wf.ListRegisteredDevices() {
		fmt.Printf("%d) %s (created %s)\n", i+1, dev.DeviceName, dev.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	auth, err := wf.Authenticate(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Authenticated as %s with credential %s\n", auth.UserEmail, auth.CredentialID)
}
