package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// Options selects and configures a backend for Open.
type Options struct {
	Backend     string // file | sqlite | postgres | dynamodb
	DataDir     string
	SQLitePath  string
	DatabaseURL string
	TableName   string
	AWSConfig   func(ctx context.Context) (aws.Config, error)
}

// Open returns the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", "file":
		return NewFileStore(opts.DataDir)
	case "sqlite":
		return OpenSQLite(opts.SQLitePath)
	case "postgres":
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres store requires DATABASE_URL")
		}
		return OpenPostgres(opts.DatabaseURL)
	case "dynamodb":
		if opts.AWSConfig == nil {
			return nil, fmt.Errorf("dynamodb store requires AWS configuration")
		}
		cfg, err := opts.AWSConfig(ctx)
		if err != nil {
			return nil, err
		}
		return NewDynamoStore(dynamodb.NewFromConfig(cfg), opts.TableName), nil
	}
	return nil, fmt.Errorf("unknown store %q", opts.Backend)
}
