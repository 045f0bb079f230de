package immich

import "time"

// Album mirrors the server's album response
type Album struct {
	ID          string    `json:"id"`
	AlbumName   string    `json:"albumName"`
	Description string    `json:"description"`
	AssetCount  int       `json:"assetCount"`
	Shared      bool      `json:"shared"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Asset mirrors the server's asset response, trimmed to the fields the
// reconciler needs
type Asset struct {
	ID               string    `json:"id"`
	OriginalFileName string    `json:"originalFileName"`
	Type             string    `json:"type"`
	FileCreatedAt    time.Time `json:"fileCreatedAt"`
	LocalDateTime    time.Time `json:"localDateTime"`
}

// metadataSearch is the POST /search/metadata request body
type metadataSearch struct {
	OriginalFileName string     `json:"originalFileName,omitempty"`
	TakenAfter       *time.Time `json:"takenAfter,omitempty"`
	TakenBefore      *time.Time `json:"takenBefore,omitempty"`
	Page             int        `json:"page,omitempty"`
	Size             int        `json:"size,omitempty"`
}

type searchResponse struct {
	Assets struct {
		Items    []Asset `json:"items"`
		Total    int     `json:"total"`
		Count    int     `json:"count"`
		NextPage *string `json:"nextPage"`
	} `json:"assets"`
}

type pingResponse struct {
	Res string `json:"res"`
}
