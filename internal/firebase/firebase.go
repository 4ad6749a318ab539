package firebase

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	fb "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// Clients bundles the Firebase services the API talks to.
type Clients struct {
	App       *fb.App
	Auth      *auth.Client
	Firestore *firestore.Client
}

// NewClients initializes the Firebase app. It first attempts to use base64
// encoded credentials from encodedCreds. If that is empty it falls back to
// the service account file at localFilePath, and finally to application
// default credentials when the file does not exist.
func NewClients(ctx context.Context, encodedCreds, localFilePath, projectID string) (*Clients, error) {
	var opts []option.ClientOption

	if encodedCreds != "" {
		decoded, err := base64.StdEncoding.DecodeString(encodedCreds)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 firebase credentials: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(decoded))
		slog.Info("firebase: initializing from FIREBASE_CREDENTIALS_JSON")
	} else if _, err := os.Stat(localFilePath); err == nil {
		opts = append(opts, option.WithCredentialsFile(localFilePath))
		slog.Info("firebase: initializing from local file", "path", localFilePath)
	} else {
		slog.Warn("firebase: no explicit credentials, using application default credentials")
	}

	var conf *fb.Config
	if projectID != "" {
		conf = &fb.Config{ProjectID: projectID}
	}

	app, err := fb.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting auth client: %w", err)
	}

	store, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firestore client: %w", err)
	}

	return &Clients{App: app, Auth: authClient, Firestore: store}, nil
}

func (c *Clients) Close() error {
	return c.Firestore.Close()
}
