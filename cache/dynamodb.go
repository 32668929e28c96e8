package cache

import (
	"context"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/pkg/errors"
)

// DynamoDB is a Store backed by a DynamoDB table keyed by "id" (number).
type DynamoDB struct {
	DynamoDB dynamodbiface.DynamoDBAPI
	Table    string
}

var _ Store = (*DynamoDB)(nil)

func NewDynamoDB(client dynamodbiface.DynamoDBAPI, table string) *DynamoDB {
	return &DynamoDB{
		DynamoDB: client,
		Table:    table,
	}
}

type dynamoItem struct {
	ID       int64  `dynamodbav:"id"`
	Name     string `dynamodbav:"name"`
	Version  string `dynamodbav:"version"`
	Polygon  string `dynamodbav:"polygon"`
	Centroid string `dynamodbav:"centroid,omitempty"`
}

func toItem(f *Fence) *dynamoItem {
	return &dynamoItem{
		ID:       f.ID,
		Name:     f.Name,
		Version:  formatVersion(f.Version),
		Polygon:  f.Polygon,
		Centroid: formatCentroid(f.Centroid),
	}
}

func (i *dynamoItem) fence() (*Fence, error) {
	version, err := parseVersion(i.Version)
	if err != nil {
		return nil, err
	}
	centroid, err := parseCentroid(i.Centroid)
	if err != nil {
		return nil, err
	}
	return &Fence{
		ID:       i.ID,
		Name:     i.Name,
		Version:  version,
		Polygon:  i.Polygon,
		Centroid: centroid,
	}, nil
}

func (s *DynamoDB) key(id int64) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		"id": {N: aws.String(strconv.FormatInt(id, 10))},
	}
}

func (s *DynamoDB) Find(ctx context.Context, id int64) (*Fence, error) {
	output, err := s.DynamoDB.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.Table),
		Key:            s.key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "error reading fence %d", id)
	}
	if output.Item == nil {
		return nil, nil
	}
	item := &dynamoItem{}
	if err := dynamodbattribute.UnmarshalMap(output.Item, item); err != nil {
		return nil, err
	}
	return item.fence()
}

func (s *DynamoDB) put(ctx context.Context, f *Fence, condition string) error {
	item, err := dynamodbattribute.MarshalMap(toItem(f))
	if err != nil {
		return err
	}
	_, err = s.DynamoDB.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.Table),
		Item:                item,
		ConditionExpression: aws.String(condition),
	})
	return err
}

// Insert refuses to overwrite an existing row.
func (s *DynamoDB) Insert(ctx context.Context, f *Fence) error {
	return errors.Wrapf(s.put(ctx, f, "attribute_not_exists(id)"), "error inserting fence %d", f.ID)
}

// Update refuses to create a missing row.
func (s *DynamoDB) Update(ctx context.Context, f *Fence) error {
	err := s.put(ctx, f, "attribute_exists(id)")
	if aerr, ok := errors.Cause(err).(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
		return errors.Wrapf(ErrNotFound, "fence %d", f.ID)
	}
	return errors.Wrapf(err, "error updating fence %d", f.ID)
}

func (s *DynamoDB) Delete(ctx context.Context, id int64) error {
	_, err := s.DynamoDB.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.Table),
		Key:       s.key(id),
	})
	return errors.Wrapf(err, "error deleting fence %d", id)
}

// All scans the whole table, following LastEvaluatedKey.
func (s *DynamoDB) All(ctx context.Context) ([]*Fence, error) {
	fences := []*Fence{}
	input := &dynamodb.ScanInput{
		TableName:      aws.String(s.Table),
		ConsistentRead: aws.Bool(true),
	}
	for {
		res, err := s.DynamoDB.ScanWithContext(ctx, input)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan cache")
		}
		items := []dynamoItem{}
		if err := dynamodbattribute.UnmarshalListOfMaps(res.Items, &items); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal cache records")
		}
		for i := range items {
			f, err := items[i].fence()
			if err != nil {
				return nil, err
			}
			fences = append(fences, f)
		}
		if len(res.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = res.LastEvaluatedKey
	}
	sort.Slice(fences, func(i, j int) bool { return fences[i].ID < fences[j].ID })
	return fences, nil
}

func (s *DynamoDB) Close() error {
	return nil
}
