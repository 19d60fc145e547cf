package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/vqcodec/blobstore"
)

// DDBClient is the subset of the DynamoDB API used by DDBCommitter.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DDBCommitter implements blobstore.Committer with a DynamoDB table. Each
// commit is one item; a conditional put on the version key rejects a second
// writer of the same version, which S3 alone cannot do for overwrites.
//
// Table schema:
//   - Partition key: base_uri (string), the bucket and prefix of the catalog
//   - Sort key: version (number)
//
// Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name vqcodec-commits \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DDBCommitter struct {
	client  DDBClient
	table   string
	baseURI string
}

var _ blobstore.Committer = (*DDBCommitter)(nil)

// NewDDBCommitter creates a committer for the catalog at baseURI, e.g.
// "s3://bucket/prefix/".
func NewDDBCommitter(client DDBClient, table, baseURI string) *DDBCommitter {
	return &DDBCommitter{client: client, table: table, baseURI: baseURI}
}

// NewDDBCommitterFromConfig loads the default AWS configuration and creates
// a DDBCommitter on a new DynamoDB client.
func NewDDBCommitterFromConfig(ctx context.Context, table, baseURI, region string) (*DDBCommitter, error) {
	var loadOpts []func(*config.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	return NewDDBCommitter(dynamodb.NewFromConfig(cfg), table, baseURI), nil
}

// Latest implements blobstore.Committer.
func (c *DDBCommitter) Latest(ctx context.Context) (uint64, string, error) {
	resp, err := c.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.table),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: c.baseURI},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return 0, "", fmt.Errorf("s3: query commits: %w", err)
	}
	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("s3: commit item without numeric version")
	}
	nameAttr, ok := item["name"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("s3: commit item without name")
	}
	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("s3: commit version: %w", err)
	}
	return version, nameAttr.Value, nil
}

// Commit implements blobstore.Committer.
func (c *DDBCommitter) Commit(ctx context.Context, version uint64, name string) error {
	if version == 0 {
		return errors.New("s3: commit version must be positive")
	}
	_, err := c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item: map[string]types.AttributeValue{
			"base_uri": &types.AttributeValueMemberS{Value: c.baseURI},
			"version":  &types.AttributeValueMemberN{Value: strconv.FormatUint(version, 10)},
			"name":     &types.AttributeValueMemberS{Value: name},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("%w: version %d", blobstore.ErrConflict, version)
		}
		return fmt.Errorf("s3: commit version %d: %w", version, err)
	}
	return nil
}
