package domain

import (
	"errors"
	"path/filepath"
)

// StorageCredentials describe where a finished artifact is published.
// Endpoint is optional; AWS endpoints are used when it is empty.
type StorageCredentials struct {
	Endpoint  string `json:"endpoint,omitempty"`
	Region    string `json:"region"`
	Bucket    string `json:"bucket"`
	AccessKey string `json:"-"`
	SecretKey string `json:"-"`
}

// Complete reports whether all mandatory fields are present.
func (c *StorageCredentials) Complete() bool {
	return c != nil && c.Region != "" && c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// TransformationRequest is the immutable input of one job.
type TransformationRequest struct {
	SourceDataLocation string
	ProjectLocation    string
	TargetFileName     string
	Storage            *StorageCredentials
	// UploadRequired turns incomplete credentials into a publish error.
	UploadRequired bool
}

var (
	ErrMissingProject = errors.New("project location is required")
	ErrMissingSource  = errors.New("source data location is required")
)

// Validate checks the mandatory request fields.
func (r *TransformationRequest) Validate() error {
	if r.ProjectLocation == "" {
		return ErrMissingProject
	}
	if r.SourceDataLocation == "" {
		return ErrMissingSource
	}
	return nil
}

// PublishKey returns the object key used for the artifact: the requested
// target file name, or the artifact's base name.
func (r *TransformationRequest) PublishKey(artifactPath string) string {
	if r.TargetFileName != "" {
		return r.TargetFileName
	}
	return filepath.Base(artifactPath)
}

// TransformationMessage is the inbound job message shared by the queue and the HTTP API.
type TransformationMessage struct {
	ProjectURL     string `json:"projectUrl" binding:"required"`
	SourceDataURL  string `json:"sourceDataUrl" binding:"required"`
	TargetFileName string `json:"targetFileName,omitempty"`
	S3Endpoint     string `json:"s3Endpoint,omitempty"`
	S3Region       string `json:"s3Region,omitempty"`
	S3BucketName   string `json:"s3BucketName,omitempty"`
	S3AccessKey    string `json:"s3AccessKey,omitempty"`
	S3SecretKey    string `json:"s3SecretKey,omitempty"`
	UploadRequired bool   `json:"uploadRequired,omitempty"`
}

// ToRequest converts the message into a request. Storage credentials are
// attached whenever any storage field is set; completeness is checked later.
func (m *TransformationMessage) ToRequest() TransformationRequest {
	req := TransformationRequest{
		SourceDataLocation: m.SourceDataURL,
		ProjectLocation:    m.ProjectURL,
		TargetFileName:     m.TargetFileName,
		UploadRequired:     m.UploadRequired,
	}
	if m.S3Endpoint != "" || m.S3Region != "" || m.S3BucketName != "" || m.S3AccessKey != "" || m.S3SecretKey != "" {
		req.Storage = &StorageCredentials{
			Endpoint:  m.S3Endpoint,
			Region:    m.S3Region,
			Bucket:    m.S3BucketName,
			AccessKey: m.S3AccessKey,
			SecretKey: m.S3SecretKey,
		}
	}
	return req
}
