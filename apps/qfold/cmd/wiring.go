package cmd

import (
	"github.com/quatton/qfold/pkg/kv"
	"github.com/quatton/qfold/pkg/qart"
	"github.com/quatton/qfold/pkg/qerr"
	"github.com/quatton/qfold/pkg/qlog"
	"github.com/quatton/qfold/pkg/qparse"
	"github.com/spf13/afero"
)

// newAccountantCache returns Valkey when a URL is configured and an
// in-process store otherwise.
func newAccountantCache(valkeyURL string, logger *qlog.Logger) (kv.Store, error) {
	if valkeyURL == "" {
		return kv.NewMemoryStore(), nil
	}
	store, err := kv.NewValkeyStore(kv.ValkeyConfig{URL: valkeyURL, Prefix: "qfold:"})
	if err != nil {
		return nil, err
	}
	logger.Debug("accounting cache", "backend", "valkey")
	return store, nil
}

// newParser wires seff behind the accounting cache. The returned store must
// be closed by the caller.
func newParser(app *App) (*qparse.Parser, kv.Store, error) {
	order, err := qparse.ParseOrder(app.Settings.LogOrder)
	if err != nil {
		return nil, nil, err
	}
	cache, err := newAccountantCache(app.Settings.Cache.ValkeyURL, app.Logger)
	if err != nil {
		return nil, nil, err
	}
	accountant := qparse.NewCachedAccountant(qparse.NewSeffAccountant(), cache, app.Settings.Cache.TTL)
	return qparse.NewParser(app.Layout, accountant, order, app.Logger), cache, nil
}

func newArchiver(app *App) (*qart.Archiver, error) {
	s3 := app.Settings.S3
	store, err := qart.NewS3Store(qart.S3Config{
		Endpoint:  s3.Endpoint,
		AccessKey: s3.AccessKey,
		SecretKey: s3.SecretKey,
		Bucket:    s3.Bucket,
		Region:    s3.Region,
		UseSSL:    s3.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return qart.NewArchiver(app.Layout, store, app.Logger), nil
}

func requireBatch(app *App, batch string) error {
	ok, err := afero.DirExists(app.Layout.Fs, app.Layout.BatchDir(batch))
	if err != nil {
		return err
	}
	if !ok {
		return qerr.Newf(qerr.CodeMissingInput, "batch %s not found under %s", batch, app.Layout.Root)
	}
	return nil
}
