package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// BlobConfig locates model artifacts in Azure Blob Storage.
type BlobConfig struct {
	// AccountURL is the service endpoint, e.g. https://acct.blob.core.windows.net/.
	AccountURL string
	// ConnectionString takes precedence over AccountURL when set.
	ConnectionString string
	Container        string
	// CacheDir receives downloaded artifacts. Defaults to os.TempDir()/vericloud-models.
	CacheDir string
	// Credential overrides DefaultAzureCredential for AccountURL access.
	Credential azcore.TokenCredential
}

// Enabled reports whether enough fields are set to reach a container.
func (c BlobConfig) Enabled() bool {
	return c.Container != "" && (c.AccountURL != "" || c.ConnectionString != "")
}

// blobOpener is the subset of blob access the fetcher needs.
type blobOpener interface {
	Open(ctx context.Context, container, name string) (io.ReadCloser, error)
}

type azureBlobOpener struct {
	client *azblob.Client
}

func (o azureBlobOpener) Open(ctx context.Context, container, name string) (io.ReadCloser, error) {
	resp, err := o.client.DownloadStream(ctx, container, name, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// BlobFetcher downloads artifacts from a container into a local cache.
type BlobFetcher struct {
	opener    blobOpener
	container string
	cacheDir  string
	logger    *slog.Logger
}

// NewBlobFetcher builds a fetcher from cfg, authenticating with the
// connection string when present and with a token credential otherwise.
func NewBlobFetcher(cfg BlobConfig, logger *slog.Logger) (*BlobFetcher, error) {
	if !cfg.Enabled() {
		return nil, errors.New("blob storage is not configured")
	}

	var (
		client *azblob.Client
		err    error
	)
	if cfg.ConnectionString != "" {
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	} else {
		cred := cfg.Credential
		if cred == nil {
			cred, err = azidentity.NewDefaultAzureCredential(nil)
			if err != nil {
				return nil, fmt.Errorf("creating azure credential: %w", err)
			}
		}
		client, err = azblob.NewClient(cfg.AccountURL, cred, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("creating blob client: %w", err)
	}

	return newBlobFetcher(azureBlobOpener{client: client}, cfg.Container, cfg.CacheDir, logger), nil
}

func newBlobFetcher(opener blobOpener, container, cacheDir string, logger *slog.Logger) *BlobFetcher {
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "vericloud-models")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BlobFetcher{opener: opener, container: container, cacheDir: cacheDir, logger: logger}
}

// Fetch downloads the named blob into the cache directory and returns the
// local path. The file is written atomically so concurrent readers never
// observe a partial artifact.
func (f *BlobFetcher) Fetch(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", errors.New("blob name is empty")
	}

	dest := filepath.Join(f.cacheDir, f.container, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("creating cache dir: %w", err)
	}

	f.logger.Info("Downloading model artifact", "container", f.container, "blob", name)
	body, err := f.opener.Open(ctx, f.container, name)
	if err != nil {
		return "", fmt.Errorf("downloading %s/%s: %w", f.container, name, err)
	}
	defer body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("downloading %s/%s: %w", f.container, name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("moving artifact into cache: %w", err)
	}
	return dest, nil
}
