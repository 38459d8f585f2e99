package seventv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/kemote/internal/emote"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultEndpoint is the public 7TV GraphQL API.
	DefaultEndpoint = "https://api.7tv.app/v4/gql"
	// DefaultMime is the image format the picker decodes.
	DefaultMime = "image/webp"
	// DefaultScale selects the 4x image variant.
	DefaultScale = 4
	// DefaultPageSize is the number of results requested per search.
	DefaultPageSize = 50
	// DefaultSortBy orders results by all-time popularity.
	DefaultSortBy = "TOP_ALL_TIME"
)

const searchQuery = `
query EmoteSearch(
    $query: String
    $tags: [String!]!
    $sortBy: SortBy!
    $page: Int
    $perPage: Int!
) {
    emotes {
        search(
            query: $query
            tags: { tags: $tags, match: ANY }
            sort: { sortBy: $sortBy, order: DESCENDING }
            page: $page
            perPage: $perPage
        ) {
            items {
                id
                defaultName
                images {
                    url
                    mime
                    size
                    scale
                    width
                    frameCount
                }
            }
            totalCount
            pageCount
        }
    }
}
`

// ErrNoMatchingVariant is returned when an emote has no image in the
// required format and scale.
var ErrNoMatchingVariant = errors.New("seventv: no image variant matches the required format and scale")

// GraphQLError reports errors returned in a GraphQL response body.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "seventv: graphql: " + strings.Join(e.Messages, "; ")
}

// Poster submits a JSON document and returns the raw response body.
type Poster interface {
	PostJSON(ctx context.Context, url string, doc any) ([]byte, error)
}

// Options configures a Client. Zero fields take the package defaults.
type Options struct {
	Endpoint string
	Mime     string
	Scale    int
	PageSize int
	SortBy   string
	Tags     []string
}

// Client searches the 7TV emote catalogue.
type Client struct {
	poster Poster
	opts   Options
	log    logrus.FieldLogger
}

// New creates a Client posting through p.
func New(p Poster, opts Options, log logrus.FieldLogger) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Mime == "" {
		opts.Mime = DefaultMime
	}
	if opts.Scale <= 0 {
		opts.Scale = DefaultScale
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.SortBy == "" {
		opts.SortBy = DefaultSortBy
	}
	if opts.Tags == nil {
		opts.Tags = []string{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{poster: p, opts: opts, log: log}
}

// Image is one rendition of an emote.
type Image struct {
	URL        string `json:"url"`
	Mime       string `json:"mime"`
	Size       int    `json:"size"`
	Scale      int    `json:"scale"`
	Width      int    `json:"width"`
	FrameCount int    `json:"frameCount"`
}

// Item is a search candidate carrying all of its image variants.
type Item struct {
	ID     string  `json:"id"`
	Name   string  `json:"defaultName"`
	Images []Image `json:"images"`
}

type variables struct {
	Query   string   `json:"query"`
	Tags    []string `json:"tags"`
	SortBy  string   `json:"sortBy"`
	Page    int      `json:"page"`
	PerPage int      `json:"perPage"`
}

type payload struct {
	Query     string    `json:"query"`
	Variables variables `json:"variables"`
}

type response struct {
	Data *struct {
		Emotes struct {
			Search struct {
				Items []Item `json:"items"`
			} `json:"search"`
		} `json:"emotes"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Search returns emotes matching query, in the order the service ranks them.
// Items without a matching image variant are skipped.
func (c *Client) Search(ctx context.Context, query string) ([]emote.Emote, error) {
	items, err := c.SearchItems(ctx, query, 1)
	if err != nil {
		return nil, err
	}
	out := make([]emote.Emote, 0, len(items))
	for _, item := range items {
		img, err := SelectVariant(item.Images, c.opts.Mime, c.opts.Scale)
		if err != nil {
			c.log.WithFields(logrus.Fields{
				"id":    item.ID,
				"name":  item.Name,
				"mime":  c.opts.Mime,
				"scale": c.opts.Scale,
			}).WithError(err).Warn("dropping emote")
			continue
		}
		out = append(out, emote.Emote{ID: item.ID, Name: item.Name, URL: img.URL})
	}
	return out, nil
}

// SearchItems returns the raw candidates for one results page.
func (c *Client) SearchItems(ctx context.Context, query string, page int) ([]Item, error) {
	if page < 1 {
		page = 1
	}
	body, err := c.poster.PostJSON(ctx, c.opts.Endpoint, payload{
		Query: searchQuery,
		Variables: variables{
			Query:   query,
			Tags:    c.opts.Tags,
			SortBy:  c.opts.SortBy,
			Page:    page,
			PerPage: c.opts.PageSize,
		},
	})
	if err != nil {
		return nil, err
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("seventv: parsing response: %w", err)
	}
	if len(resp.Errors) > 0 {
		gqlErr := &GraphQLError{}
		for _, e := range resp.Errors {
			gqlErr.Messages = append(gqlErr.Messages, e.Message)
		}
		return nil, gqlErr
	}
	if resp.Data == nil {
		return nil, errors.New("seventv: response has no data")
	}
	return resp.Data.Emotes.Search.Items, nil
}

// SelectVariant picks the image with the given mime type and scale.
func SelectVariant(images []Image, mime string, scale int) (Image, error) {
	for _, img := range images {
		if img.Scale == scale && img.Mime == mime && img.URL != "" {
			img.URL = absoluteURL(img.URL)
			return img, nil
		}
	}
	return Image{}, ErrNoMatchingVariant
}

func absoluteURL(u string) string {
	if strings.HasPrefix(u, "//") {
		return "https:" + u
	}
	return u
}
