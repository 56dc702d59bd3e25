package gdrive

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const pdfMimeType = "application/pdf"

// Archiver uploads report artifacts into a Drive folder. Archiving the same
// name twice updates the file created the first time.
type Archiver struct {
	service  *drive.Service
	folderID string
	fileIDs  map[string]string
	mu       sync.Mutex
}

func NewArchiver(ctx context.Context, credPath, folderID string) (*Archiver, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	return NewArchiverWithOptions(ctx, folderID, option.WithCredentials(config))
}

// NewArchiverWithOptions builds an Archiver from raw client options.
func NewArchiverWithOptions(ctx context.Context, folderID string, opts ...option.ClientOption) (*Archiver, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Archiver{
		service:  svc,
		folderID: folderID,
		fileIDs:  make(map[string]string),
	}, nil
}

func (a *Archiver) Archive(ctx context.Context, localPath, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	if fileID, ok := a.fileIDs[name]; ok {
		_, err = a.service.Files.Update(fileID, &drive.File{}).Media(f).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("drive update %s: %w", name, err)
		}
		return nil
	}

	doc, err := a.service.Files.Create(&drive.File{
		Name:     name,
		MimeType: pdfMimeType,
		Parents:  []string{a.folderID},
	}).Media(f).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("drive create %s: %w", name, err)
	}

	a.fileIDs[name] = doc.Id
	return nil
}
