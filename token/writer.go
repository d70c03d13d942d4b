// Copyright 2016 The Vulcan Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package token

import (
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Credential is an access token issued by the backend. Its String method
// hides the value so it does not end up in logs by accident.
type Credential string

func (c Credential) String() string {
	return "[redacted]"
}

// FileWriter persists credentials to a single file, replacing whatever the
// file held before. Writes are not atomic: a concurrent reader may observe a
// truncated file while a write is in progress.
type FileWriter struct {
	path string
	perm os.FileMode
}

// FileWriterConfig represents the configuration of a FileWriter.
type FileWriterConfig struct {
	Path string
	// Perm is used when the file has to be created. Defaults to 0644 so that
	// a scraper running as another user can read it.
	Perm os.FileMode
}

// NewFileWriter creates an instance of FileWriter.
func NewFileWriter(config *FileWriterConfig) *FileWriter {
	perm := config.Perm
	if perm == 0 {
		perm = 0644
	}
	return &FileWriter{
		path: config.Path,
		perm: perm,
	}
}

// Path returns the file the writer writes to.
func (w *FileWriter) Path() string {
	return w.path
}

// Write creates the file if it is missing and overwrites its entire content
// with the raw bytes of c.
func (w *FileWriter) Write(c Credential) error {
	if _, err := os.Stat(w.path); os.IsNotExist(err) {
		log.WithField("path", w.path).Info("creating token file")
	}

	f, err := os.OpenFile(w.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, w.perm)
	if err != nil {
		return errors.Wrap(err, "open token file")
	}
	if _, err := f.Write([]byte(c)); err != nil {
		f.Close()
		return errors.Wrap(err, "write token file")
	}
	return errors.Wrap(f.Close(), "close token file")
}
