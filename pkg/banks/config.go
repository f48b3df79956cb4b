package banks

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"path"

	"github.com/pkg/errors"
)

// FetcherConfig is a storage where bank config of a user is stored
type FetcherConfig interface {
	GetUserConfig(ctx context.Context, userID string, receiver interface{}) error
}

type fsFetcherConfig struct {
	dir string
}

// GetUserConfig reads <dir>/<userID>.json into the receiver
func (cfg *fsFetcherConfig) GetUserConfig(ctx context.Context, userID string, receiver interface{}) error {
	if userID == "" || path.Base(userID) != userID {
		return errors.Errorf("Invalid user id: %q", userID)
	}
	logger.Debug(ctx, "Reading user config: %v", userID)
	buffer, err := ioutil.ReadFile(path.Join(cfg.dir, userID+".json"))
	if err != nil {
		return errors.Wrapf(err, "Failed to read config of user: %v", userID)
	}
	if err := json.Unmarshal(buffer, receiver); err != nil {
		return errors.Wrapf(err, "Malformed config of user: %v", userID)
	}
	return nil
}

// NewFSFetcherConfig creates an instance of a fetcher config
// that is reading from local file system
func NewFSFetcherConfig(configDir string) FetcherConfig {
	logger.Info(context.TODO(), "Initializing fetcher config: %v", configDir)
	return &fsFetcherConfig{configDir}
}
