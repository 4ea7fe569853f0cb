// Package storage defines where archived artifacts are published. Each ticker
// gets its own uniquely named container, readable by anyone holding the link.
package storage

import (
	"context"
	"fmt"
	"strings"
)

// ContentTypePDF is the content type of every uploaded artifact.
const ContentTypePDF = "application/pdf"

// Container is a per-ticker location holding uploaded artifacts.
type Container struct {
	// ID addresses the container inside its backend (object prefix, directory).
	ID   string
	Name string
	// Link is the shareable reference written to the ledger.
	Link string
}

// Store creates containers and uploads local files into them.
type Store interface {
	CreateContainer(ctx context.Context, name string) (Container, error)
	Upload(ctx context.Context, container Container, localPath string) (string, error)
}

// IDGenerator supplies the unique suffix of container names.
type IDGenerator interface {
	NewID() (string, error)
}

// ContainerName is the display name of a ticker's container.
func ContainerName(ticker, company string) string {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	company = strings.TrimSpace(company)
	if company == "" {
		return ticker
	}
	return fmt.Sprintf("%s - %s", ticker, company)
}

// UniqueName appends a generated suffix to name.
func UniqueName(ids IDGenerator, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("container name is required")
	}
	id, err := ids.NewID()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s - %s", name, id), nil
}

// SafeSegment makes name usable as a single path segment.
func SafeSegment(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return strings.TrimSpace(replacer.Replace(name))
}
