package storage

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"adrender/internal/adapters/storage/gcs"
	"adrender/internal/adapters/storage/gdrive"
	"adrender/internal/adapters/storage/localfs"
	"adrender/internal/config"
	"adrender/internal/pkg/errors"
)

// NewProvider builds the provider selected by cfg.Provider.
func NewProvider(ctx context.Context, cfg config.StorageConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "localfs":
		if cfg.LocalRoot == "" {
			return nil, errors.Configuration("localfs storage requires a root directory")
		}
		return localfs.New(cfg.LocalRoot, cfg.LocalBaseURL), nil

	case "gcs":
		c, err := gcs.New(ctx, cfg.GCSBucket, cfg.GCSCredentials)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeConfiguration, "storage.new", "open gcs client")
		}
		return c, nil

	case "gdrive":
		return newGDriveProvider(ctx, cfg)

	default:
		return nil, errors.Configurationf("unknown storage provider: %s", cfg.Provider)
	}
}

// DriveOAuthConfig is shared with the renderctl gdrive-auth command.
func DriveOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
		RedirectURL:  redirectURL,
	}
}

func newGDriveProvider(ctx context.Context, cfg config.StorageConfig) (Provider, error) {
	conf := DriveOAuthConfig(cfg.GDriveClientID, cfg.GDriveSecret, "")
	httpClient := conf.Client(ctx, &oauth2.Token{RefreshToken: cfg.GDriveRefresh})

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeConfiguration, "storage.new", "open drive service")
	}
	return gdrive.NewClient(srv, cfg.GDriveFolderID), nil
}
