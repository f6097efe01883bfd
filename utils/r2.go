// utils/r2.go
package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var r2Client *s3.Client
var r2Bucket string

// InitR2 configures the R2 client used to pull campaign spend reports.
// Spend import is optional: if the bucket is not configured the caller can
// skip starting the import worker.
func InitR2() error {
	accountID := os.Getenv("CLOUDFLARE_ACCOUNT_ID")
	accessKeyID := os.Getenv("R2_ACCESS_KEY_ID")
	accessKeySecret := os.Getenv("R2_ACCESS_KEY_SECRET")
	r2Bucket = os.Getenv("R2_BUCKET_NAME")

	if accountID == "" || accessKeyID == "" || accessKeySecret == "" || r2Bucket == "" {
		return errors.New("R2 spend import not configured (CLOUDFLARE_ACCOUNT_ID / R2_ACCESS_KEY_ID / R2_ACCESS_KEY_SECRET / R2_BUCKET_NAME)")
	}

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, accessKeySecret, "",
		)),
		config.WithEndpointResolver(aws.EndpointResolverFunc(
			func(service, region string) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID),
				}, nil
			}),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to load R2 config: %w", err)
	}

	r2Client = s3.NewFromConfig(cfg)
	return nil
}

// R2Configured reports whether InitR2 completed successfully.
func R2Configured() bool {
	return r2Client != nil
}

// DownloadFileFromR2 fetches one object from the spend bucket.
// key is the R2 object key (e.g., "spend/latest.json").
func DownloadFileFromR2(ctx context.Context, key string) ([]byte, error) {
	if r2Client == nil {
		return nil, errors.New("R2 client not initialized")
	}

	out, err := r2Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r2Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s from R2: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s body: %w", key, err)
	}
	return data, nil
}
