package models

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	apperrors "github.com/zfogg/friendlypix/internal/errors"
)

// Author is the denormalised author block embedded in posts and comments
type Author struct {
	UID            string `mapstructure:"uid" json:"uid" validate:"required"`
	FullName       string `mapstructure:"full_name" json:"full_name,omitempty"`
	ProfilePicture string `mapstructure:"profile_picture" json:"profile_picture,omitempty"`
}

// Post is stored at /posts/{postId}
type Post struct {
	Text            string  `mapstructure:"text" json:"text"`
	Author          Author  `mapstructure:"author" json:"author" validate:"required"`
	Timestamp       float64 `mapstructure:"timestamp" json:"timestamp" validate:"gte=0"`
	FullURL         string  `mapstructure:"full_url" json:"full_url,omitempty"`
	ThumbURL        string  `mapstructure:"thumb_url" json:"thumb_url,omitempty"`
	FullStorageURI  string  `mapstructure:"full_storage_uri" json:"full_storage_uri,omitempty"`
	ThumbStorageURI string  `mapstructure:"thumb_storage_uri" json:"thumb_storage_uri,omitempty"`
	Sanitized       bool    `mapstructure:"sanitized" json:"sanitized,omitempty"`
	Moderated       bool    `mapstructure:"moderated" json:"moderated,omitempty"`
}

// Comment is stored at /comments/{postId}/{commentId}
type Comment struct {
	Text      string  `mapstructure:"text" json:"text"`
	Author    Author  `mapstructure:"author" json:"author" validate:"required"`
	Timestamp float64 `mapstructure:"timestamp" json:"timestamp" validate:"gte=0"`
	Sanitized bool    `mapstructure:"sanitized" json:"sanitized,omitempty"`
	Moderated bool    `mapstructure:"moderated" json:"moderated,omitempty"`
}

// Profile is the public profile stored at /people/{uid}
type Profile struct {
	FullName            string         `mapstructure:"full_name" json:"full_name"`
	ProfilePicture      string         `mapstructure:"profile_picture" json:"profile_picture,omitempty"`
	Posts               map[string]any `mapstructure:"posts" json:"posts,omitempty"`
	Following           map[string]any `mapstructure:"following" json:"following,omitempty"`
	NotificationEnabled bool           `mapstructure:"notificationEnabled" json:"notificationEnabled,omitempty"`
	NotificationTokens  map[string]any `mapstructure:"notificationTokens" json:"notificationTokens,omitempty"`
	NotificationsSent   map[string]any `mapstructure:"notificationsSent" json:"notificationsSent,omitempty"`
	SearchIndex         *ProfileSearch `mapstructure:"_search_index" json:"_search_index,omitempty"`
}

// ProfileSearch holds the lower-cased latinised name variants used by search
type ProfileSearch struct {
	FullName         string `mapstructure:"full_name" json:"full_name"`
	ReversedFullName string `mapstructure:"reversed_full_name" json:"reversed_full_name"`
}

// Like is the timestamp stored at /likes/{postId}/{uid}
type Like struct {
	Timestamp float64 `json:"timestamp" validate:"gte=0"`
}

// HashtagIndex is the set of post ids stored at /hashtags/{tag}
type HashtagIndex struct {
	Posts map[string]bool `json:"posts" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode turns a raw store value into an Entity of the given kind, checking
// it against the kind's schema. A mismatch is a ConfigurationError.
func Decode(kind Kind, id string, raw any) (*Entity, error) {
	if raw == nil {
		return nil, apperrors.Configuration(string(kind), "record %s is empty", id)
	}

	var (
		record any
		err    error
	)
	switch kind {
	case KindPost:
		record, err = decodeStruct[Post](raw)
	case KindComment:
		record, err = decodeStruct[Comment](raw)
	case KindUser:
		record, err = decodeStruct[Profile](raw)
	case KindLike:
		record, err = decodeLike(raw)
	case KindHashtagIndex:
		record, err = decodeHashtagIndex(raw)
	default:
		return nil, apperrors.Configuration("kind", "unknown entity kind %q", kind)
	}
	if err != nil {
		return nil, apperrors.Configuration(string(kind), "record %s does not match schema", id).WithCause(err)
	}

	fields, _ := raw.(map[string]any)
	if fields == nil {
		fields = map[string]any{"value": raw}
	}
	return &Entity{ID: id, Kind: kind, Fields: fields, Record: record}, nil
}

func decodeStruct[T any](raw any) (*T, error) {
	if _, ok := raw.(map[string]any); !ok {
		return nil, fmt.Errorf("expected an object, got %T", raw)
	}
	out := new(T)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, err
	}
	if err := validate.Struct(out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeLike(raw any) (*Like, error) {
	ts, ok := raw.(float64)
	if !ok {
		return nil, fmt.Errorf("expected a numeric timestamp, got %T", raw)
	}
	like := &Like{Timestamp: ts}
	if err := validate.Struct(like); err != nil {
		return nil, err
	}
	return like, nil
}

func decodeHashtagIndex(raw any) (*HashtagIndex, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %T", raw)
	}
	idx := &HashtagIndex{Posts: make(map[string]bool, len(m))}
	for postID, v := range m {
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("post %s: expected true, got %T", postID, v)
		}
		idx.Posts[postID] = b
	}
	if err := validate.Struct(idx); err != nil {
		return nil, err
	}
	return idx, nil
}
