/*
Copyright 2026 The Cohosted Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package store

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"cohosted.org/pkg/cohost"
)

// Blob versions. Fields not promoted to columns live in a msgpack blob
// on each row; the version column drives in-place upgrade on read.
const (
	postDataVersionV1 = 1
	postDataVersionV2 = 2

	projectDataVersion = 1
	commentDataVersion = 1
)

// PostData is the current (v2) post blob. The adult-content and pinned
// flags of v1 now live in columns.
type PostData struct {
	Blocks            []cohost.Block `msgpack:"blocks"`
	CommentsLocked    bool           `msgpack:"comments_locked"`
	SharesLocked      bool           `msgpack:"shares_locked"`
	CWs               []string       `msgpack:"cws"`
	HasCohostPlus     bool           `msgpack:"has_cohost_plus"`
	Headline          string         `msgpack:"headline"`
	NumComments       uint64         `msgpack:"num_comments"`
	NumSharedComments uint64         `msgpack:"num_shared_comments"`
	PlainTextBody     string         `msgpack:"plain_text_body"`
	PostEditURL       string         `msgpack:"post_edit_url"`
	SinglePostPageURL string         `msgpack:"single_post_page_url"`
}

// postDataV1 is the legacy post blob, read only during migration.
type postDataV1 struct {
	Blocks                []cohost.Block `msgpack:"blocks"`
	CommentsLocked        bool           `msgpack:"comments_locked"`
	SharesLocked          bool           `msgpack:"shares_locked"`
	CWs                   []string       `msgpack:"cws"`
	EffectiveAdultContent bool           `msgpack:"effective_adult_content"`
	HasCohostPlus         bool           `msgpack:"has_cohost_plus"`
	Headline              string         `msgpack:"headline"`
	NumComments           uint64         `msgpack:"num_comments"`
	NumSharedComments     uint64         `msgpack:"num_shared_comments"`
	Pinned                bool           `msgpack:"pinned"`
	PlainTextBody         string         `msgpack:"plain_text_body"`
	PostEditURL           string         `msgpack:"post_edit_url"`
	SinglePostPageURL     string         `msgpack:"single_post_page_url"`
}

// ProjectData is the project blob.
type ProjectData struct {
	AskSettings             cohost.AskSettings   `msgpack:"ask_settings"`
	AvatarPreviewURL        string               `msgpack:"avatar_preview_url"`
	AvatarShape             string               `msgpack:"avatar_shape"`
	AvatarURL               string               `msgpack:"avatar_url"`
	ContactCard             []cohost.ContactCard `msgpack:"contact_card"`
	Dek                     string               `msgpack:"dek"`
	DeleteAfter             *string              `msgpack:"delete_after"`
	Description             string               `msgpack:"description"`
	DisplayName             string               `msgpack:"display_name"`
	Flags                   []string             `msgpack:"flags"`
	FrequentlyUsedTags      []string             `msgpack:"frequently_used_tags"`
	HeaderPreviewURL        *string              `msgpack:"header_preview_url"`
	HeaderURL               *string              `msgpack:"header_url"`
	LoggedOutPostVisibility string               `msgpack:"logged_out_post_visibility"`
	Privacy                 string               `msgpack:"privacy"`
	Pronouns                *string              `msgpack:"pronouns"`
	URL                     *string              `msgpack:"url"`
}

// CommentData is the comment blob.
type CommentData struct {
	Body          string `msgpack:"body"`
	Deleted       bool   `msgpack:"deleted"`
	HasCohostPlus bool   `msgpack:"has_cohost_plus"`
	Hidden        bool   `msgpack:"hidden"`
}

// PostDataFromPost selects the blob fields from a wire post.
func PostDataFromPost(p *cohost.Post) *PostData {
	return &PostData{
		Blocks:            p.Blocks,
		CommentsLocked:    p.CommentsLocked,
		SharesLocked:      p.SharesLocked,
		CWs:               p.CWs,
		HasCohostPlus:     p.HasCohostPlus,
		Headline:          p.Headline,
		NumComments:       p.NumComments,
		NumSharedComments: p.NumSharedComments,
		PlainTextBody:     p.PlainTextBody,
		PostEditURL:       p.PostEditURL,
		SinglePostPageURL: p.SinglePostPageURL,
	}
}

// ProjectDataFromProject selects the blob fields from a wire project.
func ProjectDataFromProject(p *cohost.Project) *ProjectData {
	return &ProjectData{
		AskSettings:             p.AskSettings,
		AvatarPreviewURL:        p.AvatarPreviewURL,
		AvatarShape:             p.AvatarShape,
		AvatarURL:               p.AvatarURL,
		ContactCard:             p.ContactCard,
		Dek:                     p.Dek,
		DeleteAfter:             p.DeleteAfter,
		Description:             p.Description,
		DisplayName:             p.DisplayName,
		Flags:                   p.Flags,
		FrequentlyUsedTags:      p.FrequentlyUsedTags,
		HeaderPreviewURL:        p.HeaderPreviewURL,
		HeaderURL:               p.HeaderURL,
		LoggedOutPostVisibility: p.LoggedOutPostVisibility,
		Privacy:                 p.Privacy,
		Pronouns:                p.Pronouns,
		URL:                     p.URL,
	}
}

// CommentDataFromComment selects the blob fields from a wire comment.
func CommentDataFromComment(c *cohost.Comment) *CommentData {
	return &CommentData{
		Body:          c.Comment.Body,
		Deleted:       c.Comment.Deleted,
		HasCohostPlus: c.Comment.HasCohostPlus,
		Hidden:        c.Comment.Hidden,
	}
}

func encodeBlob(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

// decodePostData decodes a post blob of any supported version into the
// current shape, returning the adult/pinned flags v1 blobs still carry.
func decodePostData(data []byte, version int) (pd *PostData, v1Adult, v1Pinned bool, err error) {
	switch version {
	case postDataVersionV1:
		var v1 postDataV1
		if err := msgpack.Unmarshal(data, &v1); err != nil {
			return nil, false, false, fmt.Errorf("post blob v1: %w", err)
		}
		return &PostData{
			Blocks:            v1.Blocks,
			CommentsLocked:    v1.CommentsLocked,
			SharesLocked:      v1.SharesLocked,
			CWs:               v1.CWs,
			HasCohostPlus:     v1.HasCohostPlus,
			Headline:          v1.Headline,
			NumComments:       v1.NumComments,
			NumSharedComments: v1.NumSharedComments,
			PlainTextBody:     v1.PlainTextBody,
			PostEditURL:       v1.PostEditURL,
			SinglePostPageURL: v1.SinglePostPageURL,
		}, v1.EffectiveAdultContent, v1.Pinned, nil
	case postDataVersionV2:
		var pd PostData
		if err := msgpack.Unmarshal(data, &pd); err != nil {
			return nil, false, false, fmt.Errorf("post blob v2: %w", err)
		}
		return &pd, false, false, nil
	default:
		return nil, false, false, fmt.Errorf("unknown post data version %d", version)
	}
}

func decodeProjectData(data []byte, version int) (*ProjectData, error) {
	if version != projectDataVersion {
		return nil, fmt.Errorf("unknown project data version %d", version)
	}
	var pd ProjectData
	if err := msgpack.Unmarshal(data, &pd); err != nil {
		return nil, fmt.Errorf("project blob: %w", err)
	}
	return &pd, nil
}

func decodeCommentData(data []byte, version int) (*CommentData, error) {
	if version != commentDataVersion {
		return nil, fmt.Errorf("unknown comment data version %d", version)
	}
	var cd CommentData
	if err := msgpack.Unmarshal(data, &cd); err != nil {
		return nil, fmt.Errorf("comment blob: %w", err)
	}
	return &cd, nil
}
