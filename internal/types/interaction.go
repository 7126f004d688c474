package types

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const cdnBase = "https://cdn.discordapp.com"

// Variant is the subcommand an interaction was classified as.
type Variant string

const (
	AvatarVariant Variant = "avatar"
	ImageVariant  Variant = "image"
)

// Identity is a chat user as resolved by the transport.
type Identity struct {
	ID            string
	Username      string
	Discriminator string
	// Avatar is the custom avatar hash, empty when the user never set one.
	Avatar string
}

// AvatarURL returns the custom avatar, or the computed default avatar when none is set.
func (i Identity) AvatarURL() string {
	if i.Avatar == "" {
		return i.DefaultAvatarURL()
	}
	return fmt.Sprintf("%s/avatars/%s/%s.png", cdnBase, i.ID, i.Avatar)
}

// DefaultAvatarURL is the avatar the platform shows for users without a custom one.
// Migrated usernames (discriminator "0") are bucketed by id, legacy ones by discriminator.
func (i Identity) DefaultAvatarURL() string {
	var index uint64
	if i.Discriminator == "" || i.Discriminator == "0" {
		id, err := strconv.ParseUint(i.ID, 10, 64)
		if err == nil {
			index = (id >> 22) % 6
		}
	} else {
		disc, err := strconv.ParseUint(i.Discriminator, 10, 64)
		if err == nil {
			index = disc % 5
		}
	}
	return fmt.Sprintf("%s/embed/avatars/%d.png", cdnBase, index)
}

// NormalizeImageURL rewrites webp asset URLs to png so the codec can decode them.
// URLs that do not parse are returned unchanged.
func NormalizeImageURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if strings.HasSuffix(u.Path, ".webp") {
		u.Path = strings.TrimSuffix(u.Path, ".webp") + ".png"
	}
	q := u.Query()
	if q.Get("format") == "webp" {
		q.Set("format", "png")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// InteractionRequest is one accepted invocation, normalized for the pipeline.
type InteractionRequest struct {
	JobID   string
	Variant Variant
	Invoker Identity
	// Target is the identity whose avatar is transformed; nil for the image variant.
	Target *Identity
	// ImageURL is the validated source to download.
	ImageURL string
}
