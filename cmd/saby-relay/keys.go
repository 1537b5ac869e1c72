package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/sabyx/saby-crm-relay/internal/storage"
)

// generatedKeyLength is the hex length of minted relay keys.
const generatedKeyLength = 32

// runKeyCommand dispatches the key management subcommands:
//
//	saby-relay keygen <name>      mint a key and print it once
//	saby-relay keys               list keys
//	saby-relay keys delete <id>   revoke a key
//
// Only DATABASE_PATH is required; the Saby credentials are not touched.
func runKeyCommand(args []string, out io.Writer) error {
	switch {
	case args[0] == "keygen":
		if len(args) != 2 || args[1] == "" {
			return errors.New("usage: saby-relay keygen <name>")
		}
		store, err := openKeyStore()
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck
		return mintKey(context.Background(), store, args[1], out)

	case args[0] == "keys" && len(args) == 1:
		store, err := openKeyStore()
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck
		return listKeys(context.Background(), store, out)

	case args[0] == "keys" && len(args) == 3 && args[1] == "delete":
		id, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid key ID %q", args[2])
		}
		store, err := openKeyStore()
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck
		return deleteKey(context.Background(), store, id, out)

	default:
		return errors.New("usage: saby-relay keygen <name> | keys | keys delete <id>")
	}
}

func openKeyStore() (*storage.SQLiteStorage, error) {
	path := os.Getenv("DATABASE_PATH")
	if path == "" {
		return nil, errors.New("DATABASE_PATH must be set for key management")
	}
	return storage.Open(path)
}

// mintKey generates a relay API key, stores its bcrypt hash and prints the
// plaintext. The plaintext is shown exactly once; only the hash survives.
func mintKey(ctx context.Context, store storage.Storage, name string, out io.Writer) error {
	key, err := generateKey()
	if err != nil {
		return err
	}

	created, err := store.CreateRelayKey(ctx, name, key)
	if err != nil {
		return fmt.Errorf("failed to store relay key: %w", err)
	}

	fmt.Fprintf(out, "created relay key %d (%s)\n", created.ID, created.Name)
	fmt.Fprintf(out, "X-API-Key: %s\n", key)
	fmt.Fprintln(out, "save this key now, it is not recoverable from the database")
	return nil
}

func listKeys(ctx context.Context, store storage.Storage, out io.Writer) error {
	keys, err := store.ListRelayKeys(ctx)
	if err != nil {
		return err
	}

	if len(keys) == 0 {
		fmt.Fprintln(out, "no relay keys")
		return nil
	}
	for _, k := range keys {
		fmt.Fprintf(out, "%d\t%s\t%s\n", k.ID, k.Name, k.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func deleteKey(ctx context.Context, store storage.Storage, id int64, out io.Writer) error {
	key, err := store.GetRelayKey(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("relay key %d not found", id)
	}
	if err != nil {
		return err
	}

	if err := store.DeleteRelayKey(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted relay key %d (%s)\n", id, key.Name)
	return nil
}

func generateKey() (string, error) {
	b := make([]byte, generatedKeyLength/2)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate key material: %w", err)
	}
	return hex.EncodeToString(b), nil
}
