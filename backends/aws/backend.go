package aws

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gomodule/redigo/redis"
	"github.com/nyaruka/petpost"
	"github.com/nyaruka/redisx"
)

func init() {
	petpost.RegisterBackend("aws", newBackend)
}

// backend is our DynamoDB + S3 backed storage, with Redis coordinating posting runs
// across processes
type backend struct {
	config *petpost.Config

	dynamo    *dynamodb.Client
	s3        *s3.Client
	redisPool *redis.Pool
	locker    *redisx.Locker
}

func newBackend(config *petpost.Config) petpost.Backend {
	return &backend{config: config}
}

// Start creates our client handles and checks the table, bucket and Redis are all
// reachable before we take any traffic
func (b *backend) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	log := slog.With("comp", "backend")

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(b.config.AWSRegion)}
	if !b.config.AWSUseCredChain {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(b.config.AWSAccessKeyID, b.config.AWSSecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("error loading AWS config: %w", err)
	}

	b.dynamo = dynamodb.NewFromConfig(cfg)
	b.s3 = s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(b.config.S3Endpoint)
		o.UsePathStyle = b.config.S3Minio
	})

	if _, err := b.dynamo.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(b.config.DynamoTable)}); err != nil {
		return fmt.Errorf("error checking item table %s: %w", b.config.DynamoTable, err)
	}
	if _, err := b.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.config.S3Bucket)}); err != nil {
		return fmt.Errorf("error checking image bucket %s: %w", b.config.S3Bucket, err)
	}

	b.redisPool = &redis.Pool{
		Wait:        true,
		MaxActive:   8,
		MaxIdle:     4,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			return redis.DialURL(b.config.Redis)
		},
	}

	conn := b.redisPool.Get()
	defer conn.Close()
	if _, err := conn.Do("PING"); err != nil {
		return fmt.Errorf("error connecting to redis: %w", err)
	}

	b.locker = redisx.NewLocker("petpost:cycle", 5*time.Minute)

	log.Info("backend started", "table", b.config.DynamoTable, "bucket", b.config.S3Bucket)
	return nil
}

// Stop tears down our connections
func (b *backend) Stop() error {
	if b.redisPool != nil {
		return b.redisPool.Close()
	}
	return nil
}

// GrabCycleLock tries to grab the posting lock, giving up quickly rather than queueing
// behind a run that is already in flight
func (b *backend) GrabCycleLock(ctx context.Context) (string, error) {
	return b.locker.Grab(b.redisPool, time.Second*10)
}

// ReleaseCycleLock releases the posting lock grabbed with the given value
func (b *backend) ReleaseCycleLock(ctx context.Context, lock string) error {
	return b.locker.Release(b.redisPool, lock)
}

// Health returns the health of our backing services
func (b *backend) Health() string {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	health := ""

	if _, err := b.dynamo.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(b.config.DynamoTable)}); err != nil {
		health += fmt.Sprintf("\n% 16s: %v", "dynamo err", err)
	}
	if _, err := b.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.config.S3Bucket)}); err != nil {
		health += fmt.Sprintf("\n% 16s: %v", "s3 err", err)
	}

	conn := b.redisPool.Get()
	defer conn.Close()
	if _, err := conn.Do("PING"); err != nil {
		health += fmt.Sprintf("\n% 16s: %v", "redis err", err)
	}

	if health == "" {
		health = "\nall services: OK"
	}
	return health
}
