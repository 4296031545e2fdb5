package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/johnwmail/pasties/models"
	"go.uber.org/zap"
)

// dynamoAPI is the subset of the DynamoDB client the store uses
type dynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoStore implements PasteStore using DynamoDB. The table's partition
// key is the string attribute "url"; enable native TTL on "ttl".
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	logger    *zap.Logger
}

// NewDynamoStore creates a new DynamoDB storage backend. endpoint may point at
// DynamoDB Local; leave it empty for AWS.
func NewDynamoStore(tableName, region, endpoint string, logger *zap.Logger) (*DynamoStore, error) {
	if tableName == "" {
		return nil, fmt.Errorf("dynamodb table name must not be empty")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return newDynamoStoreWithClient(client, tableName, logger), nil
}

func newDynamoStoreWithClient(client dynamoAPI, tableName string, logger *zap.Logger) *DynamoStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DynamoStore{client: client, tableName: tableName, logger: logger}
}

func urlKey(url string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"url": &types.AttributeValueMemberS{Value: url},
	}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// Create stores a paste unless its URL is taken
func (d *DynamoStore) Create(ctx context.Context, paste *models.Paste) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                pasteToItem(paste),
		ConditionExpression: aws.String("attribute_not_exists(#u)"),
		ExpressionAttributeNames: map[string]string{
			"#u": "url",
		},
	})
	if isConditionFailed(err) {
		return ErrAlreadyExists
	}
	return err
}

// GetByURL retrieves a paste by URL
func (d *DynamoStore) GetByURL(ctx context.Context, url string) (*models.Paste, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            urlKey(url),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}
	return itemToPaste(result.Item), nil
}

// Exists reports whether url is taken
func (d *DynamoStore) Exists(ctx context.Context, url string) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(d.tableName),
		Key:                  urlKey(url),
		ProjectionExpression: aws.String("#u"),
		ExpressionAttributeNames: map[string]string{
			"#u": "url",
		},
	})
	if err != nil {
		return false, err
	}
	return result.Item != nil, nil
}

// Update overwrites the item in place, or moves it in one transaction when
// the URL (the partition key) changes.
func (d *DynamoStore) Update(ctx context.Context, oldURL string, paste *models.Paste) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	names := map[string]string{"#u": "url"}

	if paste.URL == oldURL {
		_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                aws.String(d.tableName),
			Item:                     pasteToItem(paste),
			ConditionExpression:      aws.String("attribute_exists(#u)"),
			ExpressionAttributeNames: names,
		})
		if isConditionFailed(err) {
			return ErrNotFound
		}
		return err
	}

	_, err := d.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:                aws.String(d.tableName),
				Item:                     pasteToItem(paste),
				ConditionExpression:      aws.String("attribute_not_exists(#u)"),
				ExpressionAttributeNames: names,
			}},
			{Delete: &types.Delete{
				TableName:                aws.String(d.tableName),
				Key:                      urlKey(oldURL),
				ConditionExpression:      aws.String("attribute_exists(#u)"),
				ExpressionAttributeNames: names,
			}},
		},
	})

	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for i, reason := range tce.CancellationReasons {
			if aws.ToString(reason.Code) != "ConditionalCheckFailed" {
				continue
			}
			if i == 0 {
				return ErrAlreadyExists
			}
			return ErrNotFound
		}
	}
	return err
}

// Delete removes a paste from DynamoDB
func (d *DynamoStore) Delete(ctx context.Context, url string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(d.tableName),
		Key:                 urlKey(url),
		ConditionExpression: aws.String("attribute_exists(#u)"),
		ExpressionAttributeNames: map[string]string{
			"#u": "url",
		},
	})
	if isConditionFailed(err) {
		return ErrNotFound
	}
	return err
}

// IncrementViews increments the view counter for a paste
func (d *DynamoStore) IncrementViews(ctx context.Context, url string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(d.tableName),
		Key:                 urlKey(url),
		UpdateExpression:    aws.String("ADD #v :inc"),
		ConditionExpression: aws.String("attribute_exists(#u)"),
		ExpressionAttributeNames: map[string]string{
			"#u": "url",
			"#v": "views",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":inc": &types.AttributeValueMemberN{Value: "1"},
		},
	})
	if isConditionFailed(err) {
		return ErrNotFound
	}
	return err
}

// scanAll walks the whole table. Listing is rare enough that a scan is
// acceptable; a GSI on owner would be the next step for large tables.
func (d *DynamoStore) scanAll(ctx context.Context, in *dynamodb.ScanInput, fn func(*models.Paste) error) error {
	in.TableName = aws.String(d.tableName)
	for {
		out, err := d.client.Scan(ctx, in)
		if err != nil {
			return err
		}
		for _, item := range out.Items {
			if err := fn(itemToPaste(item)); err != nil {
				return err
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// List returns pastes newest first
func (d *DynamoStore) List(ctx context.Context, opts models.ListOptions) ([]*models.Paste, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var pastes []*models.Paste
	err := d.scanAll(ctx, &dynamodb.ScanInput{}, func(p *models.Paste) error {
		if opts.Matches(p) {
			pastes = append(pastes, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(pastes, func(i, j int) bool {
		if pastes[i].DatePublished != pastes[j].DatePublished {
			return pastes[i].DatePublished > pastes[j].DatePublished
		}
		return pastes[i].URL < pastes[j].URL
	})
	return paginate(pastes, opts.Offset, opts.Limit), nil
}

// DeleteExpired removes items the native TTL sweeper has not reached yet
func (d *DynamoStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var expired []string
	err := d.scanAll(ctx, &dynamodb.ScanInput{
		FilterExpression: aws.String("expires_at > :zero AND expires_at <= :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":now":  &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	}, func(p *models.Paste) error {
		expired = append(expired, p.URL)
		return nil
	})
	if err != nil {
		return 0, err
	}

	var n int64
	for _, url := range expired {
		if err := d.Delete(ctx, url); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

// Ping checks that the table is reachable
func (d *DynamoStore) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.tableName),
	})
	return err
}

// Close is a no-op for DynamoDB
func (d *DynamoStore) Close() error {
	return nil
}

func numberAttr(v int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}

func stringAttr(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}

// pasteToItem converts a Paste model to a DynamoDB item
func pasteToItem(paste *models.Paste) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"url":            stringAttr(paste.URL),
		"id":             stringAttr(paste.ID),
		"content":        stringAttr(paste.Content),
		"password":       stringAttr(paste.Password),
		"date_published": numberAttr(paste.DatePublished),
		"date_edited":    numberAttr(paste.DateEdited),
		"expires_at":     numberAttr(paste.ExpiresAt),
		"views":          numberAttr(paste.Views),
		"metadata": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"owner":         stringAttr(paste.Metadata.Owner),
			"title":         stringAttr(paste.Metadata.Title),
			"description":   stringAttr(paste.Metadata.Description),
			"favicon":       stringAttr(paste.Metadata.Favicon),
			"embed_color":   stringAttr(paste.Metadata.EmbedColor),
			"view_password": stringAttr(paste.Metadata.ViewPassword),
		}},
	}

	// Native TTL sweeps the item some time after expiry
	if paste.ExpiresAt > 0 {
		item["ttl"] = numberAttr(paste.ExpiresAt)
	}
	return item
}

func readString(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func readNumber(item map[string]types.AttributeValue, key string) int64 {
	if v, ok := item[key].(*types.AttributeValueMemberN); ok {
		if n, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// itemToPaste converts a DynamoDB item to a Paste model
func itemToPaste(item map[string]types.AttributeValue) *models.Paste {
	paste := &models.Paste{
		ID:            readString(item, "id"),
		URL:           readString(item, "url"),
		Content:       readString(item, "content"),
		Password:      readString(item, "password"),
		DatePublished: readNumber(item, "date_published"),
		DateEdited:    readNumber(item, "date_edited"),
		ExpiresAt:     readNumber(item, "expires_at"),
		Views:         readNumber(item, "views"),
	}

	if meta, ok := item["metadata"].(*types.AttributeValueMemberM); ok {
		paste.Metadata = models.PasteMetadata{
			Owner:        readString(meta.Value, "owner"),
			Title:        readString(meta.Value, "title"),
			Description:  readString(meta.Value, "description"),
			Favicon:      readString(meta.Value, "favicon"),
			EmbedColor:   readString(meta.Value, "embed_color"),
			ViewPassword: readString(meta.Value, "view_password"),
		}
	}
	return paste
}
