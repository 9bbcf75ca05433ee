package notes

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/notewellhq/notewell-backend/pkg/config"
	"github.com/notewellhq/notewell-backend/pkg/dynamo"
	"github.com/notewellhq/notewell-backend/pkg/errors"
	"github.com/notewellhq/notewell-backend/pkg/pagination"
)

// batchWriteMax is the DynamoDB limit on items per BatchWriteItem call.
const batchWriteMax = 25

// unprocessedRetryPasses bounds the internal retries over unprocessed batch
// delete items before the remainder is reported back to the caller.
const unprocessedRetryPasses = 3

// Repository owns every access to the notes table.
type Repository struct {
	client dynamo.API
	table  string
	index  string
}

func NewRepository(client dynamo.API, cfg config.NoteStoreConfig) (*Repository, error) {
	if client == nil {
		return nil, fmt.Errorf("dynamo client is required")
	}
	if cfg.Table == "" {
		return nil, fmt.Errorf("notes table name is required")
	}
	if cfg.CreatedIndex == "" {
		return nil, fmt.Errorf("created index name is required")
	}
	return &Repository{client: client, table: cfg.Table, index: cfg.CreatedIndex}, nil
}

func noteKey(ownerID, noteID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: ownerID},
		"SK": &types.AttributeValueMemberS{Value: noteID},
	}
}

// EnsureDedupIndex lazily creates the per-owner dedup index item with an
// empty map. An existing index is left untouched.
func (r *Repository) EnsureDedupIndex(ctx context.Context, ownerID string) error {
	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item: map[string]types.AttributeValue{
			"PK":  &types.AttributeValueMemberS{Value: ownerID},
			"SK":  &types.AttributeValueMemberS{Value: dedupIndexSK},
			"ids": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{}},
		},
		ConditionExpression: aws.String("attribute_not_exists(SK)"),
	})
	if err != nil {
		if dynamo.IsConditionalCheckFailed(err) {
			return nil
		}
		return dynamo.WrapError(err, "creating dedup index")
	}
	return nil
}

// GetDedupIndex returns the owner's global_id to note id map. A missing index
// item reads as an empty map.
func (r *Repository) GetDedupIndex(ctx context.Context, ownerID string) (map[string]string, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            noteKey(ownerID, dedupIndexSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, dynamo.WrapError(err, "reading dedup index")
	}
	if out.Item == nil {
		return map[string]string{}, nil
	}

	var item struct {
		IDs map[string]string `dynamodbav:"ids"`
	}
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "unmarshalling dedup index")
	}
	if item.IDs == nil {
		item.IDs = map[string]string{}
	}
	return item.IDs, nil
}

// DeleteDedupIndex removes the owner's dedup index item. Used by the user
// delete cascade once every note is gone.
func (r *Repository) DeleteDedupIndex(ctx context.Context, ownerID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.table),
		Key:       noteKey(ownerID, dedupIndexSK),
	})
	if err != nil {
		return dynamo.WrapError(err, "deleting dedup index")
	}
	return nil
}

// CreateNoteWithIndex inserts the note and its dedup index entry in one
// transaction. Neither write can land without the other.
func (r *Repository) CreateNoteWithIndex(ctx context.Context, note Note) error {
	item, err := attributevalue.MarshalMap(note)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, err, "marshalling note")
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(r.table),
					Item:                item,
					ConditionExpression: aws.String("attribute_not_exists(SK)"),
				},
			},
			{
				Update: &types.Update{
					TableName:           aws.String(r.table),
					Key:                 noteKey(note.OwnerID, dedupIndexSK),
					UpdateExpression:    aws.String("SET ids.#g = :note_id"),
					ConditionExpression: aws.String("attribute_exists(SK)"),
					ExpressionAttributeNames: map[string]string{
						"#g": note.GlobalID,
					},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":note_id": &types.AttributeValueMemberS{Value: note.NoteID},
					},
				},
			},
		},
	})
	if err != nil {
		return dynamo.WrapError(err, "creating note")
	}
	return nil
}

// GetNote fetches a single note. Missing notes come back as a not-found
// coded error.
func (r *Repository) GetNote(ctx context.Context, ownerID, noteID string) (*Note, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key:       noteKey(ownerID, noteID),
	})
	if err != nil {
		return nil, dynamo.WrapError(err, "reading note")
	}
	if out.Item == nil {
		return nil, errors.New(errors.CodeNotFound, "note not found")
	}

	var note Note
	if err := attributevalue.UnmarshalMap(out.Item, &note); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "unmarshalling note")
	}
	return &note, nil
}

// BatchGetNotes fetches up to 100 notes in one call. Missing ids are simply
// absent from the result.
func (r *Repository) BatchGetNotes(ctx context.Context, ownerID string, noteIDs []string) (map[string]Note, error) {
	found := make(map[string]Note, len(noteIDs))
	if len(noteIDs) == 0 {
		return found, nil
	}

	keys := make([]map[string]types.AttributeValue, 0, len(noteIDs))
	for _, id := range noteIDs {
		keys = append(keys, noteKey(ownerID, id))
	}

	out, err := r.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
		RequestItems: map[string]types.KeysAndAttributes{
			r.table: {Keys: keys},
		},
	})
	if err != nil {
		return nil, dynamo.WrapError(err, "batch reading notes")
	}

	for _, item := range out.Responses[r.table] {
		var note Note
		if err := attributevalue.UnmarshalMap(item, &note); err != nil {
			return nil, errors.Wrap(errors.CodeInternal, err, "unmarshalling note")
		}
		found[note.NoteID] = note
	}
	return found, nil
}

// UpdateNote applies the given fields under an existence condition. A
// condition miss is a distinct not-found, never a generic conflict.
func (r *Repository) UpdateNote(ctx context.Context, ownerID, noteID string, fields UpdateNoteFields, modifiedAt string) (*Note, error) {
	expr := "SET timestamp_modified = :modified"
	names := map[string]string{}
	values := map[string]types.AttributeValue{
		":modified": &types.AttributeValueMemberS{Value: modifiedAt},
	}

	if fields.Title != nil {
		expr += ", #title = :title"
		names["#title"] = "title"
		values[":title"] = &types.AttributeValueMemberS{Value: *fields.Title}
	}
	if fields.Content != nil {
		expr += ", #content = :content, short_content = :short_content"
		names["#content"] = "content"
		values[":content"] = &types.AttributeValueMemberS{Value: *fields.Content}
		values[":short_content"] = &types.AttributeValueMemberS{Value: shortContent(*fields.Content)}
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table),
		Key:                       noteKey(ownerID, noteID),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(SK)"),
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	}
	if len(names) > 0 {
		input.ExpressionAttributeNames = names
	}

	out, err := r.client.UpdateItem(ctx, input)
	if err != nil {
		if dynamo.IsConditionalCheckFailed(err) {
			return nil, errors.New(errors.CodeNotFound, "note not found")
		}
		return nil, dynamo.WrapError(err, "updating note")
	}

	var note Note
	if err := attributevalue.UnmarshalMap(out.Attributes, &note); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "unmarshalling updated note")
	}
	return &note, nil
}

// DeleteNotesBatch removes the given notes, retrying unprocessed items a few
// passes before reporting the remainder as failed.
func (r *Repository) DeleteNotesBatch(ctx context.Context, ownerID string, noteIDs []string) ([]string, error) {
	var failed []string

	for start := 0; start < len(noteIDs); start += batchWriteMax {
		end := min(start+batchWriteMax, len(noteIDs))

		requests := make([]types.WriteRequest, 0, end-start)
		for _, id := range noteIDs[start:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: noteKey(ownerID, id)},
			})
		}

		remaining, err := r.writeWithRetries(ctx, requests)
		if err != nil {
			return nil, err
		}
		for _, req := range remaining {
			if req.DeleteRequest == nil {
				continue
			}
			if sk, ok := req.DeleteRequest.Key["SK"].(*types.AttributeValueMemberS); ok {
				failed = append(failed, sk.Value)
			}
		}
	}
	return failed, nil
}

func (r *Repository) writeWithRetries(ctx context.Context, requests []types.WriteRequest) ([]types.WriteRequest, error) {
	remaining := requests
	for pass := 0; pass < unprocessedRetryPasses && len(remaining) > 0; pass++ {
		out, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{r.table: remaining},
		})
		if err != nil {
			return nil, dynamo.WrapError(err, "batch deleting notes")
		}
		remaining = out.UnprocessedItems[r.table]
	}
	return remaining, nil
}

// QueryPage returns one page of the owner's notes ordered newest-first via
// the creation-time index. The returned cursor is nil on the final page.
func (r *Repository) QueryPage(ctx context.Context, ownerID string, limit int32, cursor *pagination.Cursor) ([]Note, *pagination.Cursor, error) {
	var startKey map[string]types.AttributeValue
	if cursor != nil {
		startKey = map[string]types.AttributeValue{
			"PK":                &types.AttributeValueMemberS{Value: cursor.OwnerID},
			"SK":                &types.AttributeValueMemberS{Value: cursor.NoteID},
			"timestamp_created": &types.AttributeValueMemberS{Value: cursor.CreatedAt},
		}
	}

	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.table),
		IndexName:              aws.String(r.index),
		KeyConditionExpression: aws.String("PK = :owner"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: ownerID},
		},
		Limit:             aws.Int32(limit),
		ScanIndexForward:  aws.Bool(false),
		ExclusiveStartKey: startKey,
	})
	if err != nil {
		return nil, nil, dynamo.WrapError(err, "querying notes page")
	}

	notes := make([]Note, 0, len(out.Items))
	for _, item := range out.Items {
		var note Note
		if err := attributevalue.UnmarshalMap(item, &note); err != nil {
			return nil, nil, errors.Wrap(errors.CodeInternal, err, "unmarshalling note")
		}
		notes = append(notes, note)
	}

	var next *pagination.Cursor
	if len(out.LastEvaluatedKey) > 0 {
		next = &pagination.Cursor{OwnerID: ownerID}
		if sk, ok := out.LastEvaluatedKey["SK"].(*types.AttributeValueMemberS); ok {
			next.NoteID = sk.Value
		}
		if created, ok := out.LastEvaluatedKey["timestamp_created"].(*types.AttributeValueMemberS); ok {
			next.CreatedAt = created.Value
		}
	}
	return notes, next, nil
}

// QueryIDsPage returns one page of the owner's note items straight off the
// base table, dedup index excluded. Used by the user delete cascade.
func (r *Repository) QueryIDsPage(ctx context.Context, ownerID string, limit int32) ([]Note, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.table),
		KeyConditionExpression: aws.String("PK = :owner"),
		FilterExpression:       aws.String("SK <> :index_sk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner":    &types.AttributeValueMemberS{Value: ownerID},
			":index_sk": &types.AttributeValueMemberS{Value: dedupIndexSK},
		},
		Limit:          aws.Int32(limit),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, dynamo.WrapError(err, "querying note ids page")
	}

	notes := make([]Note, 0, len(out.Items))
	for _, item := range out.Items {
		var note Note
		if err := attributevalue.UnmarshalMap(item, &note); err != nil {
			return nil, errors.Wrap(errors.CodeInternal, err, "unmarshalling note")
		}
		notes = append(notes, note)
	}
	return notes, nil
}

// AddMedias writes new entries into the note's media map under an existence
// condition.
func (r *Repository) AddMedias(ctx context.Context, ownerID, noteID string, medias map[string]NoteMedia, modifiedAt string) error {
	expr := "SET timestamp_modified = :modified"
	names := map[string]string{}
	values := map[string]types.AttributeValue{
		":modified": &types.AttributeValueMemberS{Value: modifiedAt},
	}

	i := 0
	for mediaID, media := range medias {
		av, err := attributevalue.MarshalMap(media)
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "marshalling media")
		}
		nameKey := fmt.Sprintf("#m%d", i)
		valueKey := fmt.Sprintf(":m%d", i)
		expr += fmt.Sprintf(", medias.%s = %s", nameKey, valueKey)
		names[nameKey] = mediaID
		values[valueKey] = &types.AttributeValueMemberM{Value: av}
		i++
	}

	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table),
		Key:                       noteKey(ownerID, noteID),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(SK)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if dynamo.IsConditionalCheckFailed(err) {
			return errors.New(errors.CodeNotFound, "note not found")
		}
		return dynamo.WrapError(err, "adding note medias")
	}
	return nil
}

// SetMediaStatus flips the status of the given media entries under an
// existence condition on both the note and each entry.
func (r *Repository) SetMediaStatus(ctx context.Context, ownerID, noteID string, mediaIDs []string, status string, modifiedAt string) error {
	if len(mediaIDs) == 0 {
		return nil
	}

	expr := "SET timestamp_modified = :modified"
	condition := "attribute_exists(SK)"
	names := map[string]string{}
	values := map[string]types.AttributeValue{
		":modified": &types.AttributeValueMemberS{Value: modifiedAt},
		":status":   &types.AttributeValueMemberS{Value: status},
	}

	for i, mediaID := range mediaIDs {
		nameKey := fmt.Sprintf("#m%d", i)
		expr += fmt.Sprintf(", medias.%s.#st = :status", nameKey)
		condition += fmt.Sprintf(" AND attribute_exists(medias.%s)", nameKey)
		names[nameKey] = mediaID
	}
	names["#st"] = "status"

	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table),
		Key:                       noteKey(ownerID, noteID),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String(condition),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if dynamo.IsConditionalCheckFailed(err) {
			return errors.New(errors.CodeNotFound, "note or media not found")
		}
		return dynamo.WrapError(err, "updating media status")
	}
	return nil
}

// RemoveMedias deletes entries from the note's media map under an existence
// condition on the note.
func (r *Repository) RemoveMedias(ctx context.Context, ownerID, noteID string, mediaIDs []string, modifiedAt string) error {
	if len(mediaIDs) == 0 {
		return nil
	}

	expr := "SET timestamp_modified = :modified REMOVE "
	names := map[string]string{}
	for i, mediaID := range mediaIDs {
		if i > 0 {
			expr += ", "
		}
		nameKey := fmt.Sprintf("#m%d", i)
		expr += "medias." + nameKey
		names[nameKey] = mediaID
	}

	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.table),
		Key:                 noteKey(ownerID, noteID),
		UpdateExpression:    aws.String(expr),
		ConditionExpression: aws.String("attribute_exists(SK)"),
		ExpressionAttributeNames: names,
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":modified": &types.AttributeValueMemberS{Value: modifiedAt},
		},
	})
	if err != nil {
		if dynamo.IsConditionalCheckFailed(err) {
			return errors.New(errors.CodeNotFound, "note not found")
		}
		return dynamo.WrapError(err, "removing note medias")
	}
	return nil
}
