package models

import "time"

// StagedFile represents metadata about the file currently chosen on a page.
type StagedFile struct {
	ID       string    `json:"id" msgpack:"id"`
	Name     string    `json:"name" msgpack:"name"`
	Size     int64     `json:"size" msgpack:"size"`
	StagedAt time.Time `json:"stagedAt" msgpack:"stagedAt"`
}

// Preview is a revocable download reference bound to one staged file.
type Preview struct {
	Token  string `json:"token" msgpack:"token"`
	FileID string `json:"fileId" msgpack:"fileId"`
	Name   string `json:"name" msgpack:"name"`
}

// FileInfoPanel mirrors the file-info block of the page.
type FileInfoPanel struct {
	Visible  bool   `json:"visible" msgpack:"visible"`
	FileName string `json:"fileName" msgpack:"fileName"`
	Href     string `json:"href" msgpack:"href"`
	Download string `json:"download,omitempty" msgpack:"download,omitempty"`
}
