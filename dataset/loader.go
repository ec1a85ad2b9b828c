// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// LoadRatings reads "user<sep>item<sep>rating" lines. Blank lines and lines
// starting with # are ignored. Fields after the rating, such as timestamps,
// are ignored too.
func LoadRatings(r io.Reader, sep string) ([]Rating, error) {
	var ratings []Rating
	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, sep)
		if len(fields) < 3 {
			return nil, errors.NotValidf("line %d: %q", lineNumber, line)
		}
		userId, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
		if err != nil {
			return nil, errors.Annotatef(err, "line %d", lineNumber)
		}
		itemId, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
		if err != nil {
			return nil, errors.Annotatef(err, "line %d", lineNumber)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 32)
		if err != nil {
			return nil, errors.Annotatef(err, "line %d", lineNumber)
		}
		ratings = append(ratings, Rating{UserId: userId, ItemId: itemId, Value: float32(value)})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	return ratings, nil
}

// LoadRatingsFromFile opens a file and reads ratings by LoadRatings.
func LoadRatingsFromFile(path, sep string) ([]Rating, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	ratings, err := LoadRatings(file, sep)
	if err != nil {
		return nil, errors.Annotate(err, path)
	}
	return ratings, nil
}
