package handlers

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mahirjain10/photomosaic-bot/internal/types"
)

// User-visible texts. Each failed job ends with exactly one of them.
const (
	TextDownloadFailed = "Could not download image"
	TextInvalidURL     = "Invalid url"
	TextForeignHost    = "You can only use discord hosted images"
	TextUploadFailed   = "Could not upload image result"
	TextInternalError  = "Something went wrong while transforming the image"
	TextUnknownCommand = "Unknown command"
	TextSuccess        = "Here is your image!"
)

// allowedHosts are the asset domains image URLs may point at.
var allowedHosts = map[string]struct{}{
	"cdn.discordapp.com":   {},
	"media.discordapp.net": {},
}

// Command is one invocation of the transform command as delivered by the transport.
type Command struct {
	Subcommand string
	Invoker    types.Identity
	// Target is the resolved user option of the avatar subcommand.
	Target *types.Identity
	// URL is the raw url option of the image subcommand.
	URL string
}

// ValidationError rejects a command before any network access. Message is shown to the
// user as is.
type ValidationError struct {
	Message string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid command: %s", e.Reason)
}

// Route classifies cmd into a job input. The returned request has no JobID yet.
func Route(cmd Command) (types.InteractionRequest, error) {
	switch types.Variant(cmd.Subcommand) {
	case types.AvatarVariant:
		target := cmd.Invoker
		if cmd.Target != nil {
			target = *cmd.Target
		}
		return types.InteractionRequest{
			Variant:  types.AvatarVariant,
			Invoker:  cmd.Invoker,
			Target:   &target,
			ImageURL: types.NormalizeImageURL(target.AvatarURL()),
		}, nil
	case types.ImageVariant:
		imageURL, err := validateImageURL(cmd.URL)
		if err != nil {
			return types.InteractionRequest{}, err
		}
		return types.InteractionRequest{
			Variant:  types.ImageVariant,
			Invoker:  cmd.Invoker,
			ImageURL: imageURL,
		}, nil
	default:
		return types.InteractionRequest{}, &ValidationError{
			Message: TextUnknownCommand,
			Reason:  fmt.Sprintf("unknown subcommand %q", cmd.Subcommand),
		}
	}
}

func validateImageURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", &ValidationError{Message: TextInvalidURL, Reason: err.Error()}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", &ValidationError{Message: TextInvalidURL, Reason: fmt.Sprintf("not an absolute http url: %q", raw)}
	}
	host := strings.ToLower(u.Hostname())
	if _, ok := allowedHosts[host]; !ok {
		return "", &ValidationError{Message: TextForeignHost, Reason: fmt.Sprintf("host %q is not allowed", host)}
	}
	return u.String(), nil
}
