package s3

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const testBucket = "test-bucket"

type fakeObject struct {
	data        []byte
	etag        string
	contentType string
	version     string
	modified    time.Time
}

type fakeUpload struct {
	key         string
	contentType string
	parts       map[int][]byte
}

// fakeS3 is a path-style S3 endpoint keeping one bucket in memory. It speaks
// enough of the REST protocol for the SDK operations the service issues.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string]*fakeObject
	uploads  map[string]*fakeUpload
	versions int
	nextID   int

	// failWith answers every object request with this status and code.
	failStatus int
	failCode   string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects: make(map[string]*fakeObject),
		uploads: make(map[string]*fakeUpload),
	}
}

func (f *fakeS3) object(key string) (*fakeObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	return obj, ok
}

func (f *fakeS3) pendingUploads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

func (f *fakeS3) store(key string, data []byte, contentType string) *fakeObject {
	sum := md5.Sum(data)
	f.versions++
	obj := &fakeObject{
		data:        data,
		etag:        `"` + hex.EncodeToString(sum[:]) + `"`,
		contentType: contentType,
		version:     strconv.Itoa(f.versions),
		modified:    time.Now().UTC().Truncate(time.Second),
	}
	f.objects[key] = obj
	return obj
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message><RequestId>fake</RequestId></Error>`, code, code)
}

func writeXML(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/xml")
	body, err := xml.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(body)
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")
	if bucket != testBucket {
		writeError(w, http.StatusNotFound, "NoSuchBucket")
		return
	}

	f.mu.Lock()
	status, code := f.failStatus, f.failCode
	f.mu.Unlock()
	if status != 0 && key != "" {
		if r.Method == http.MethodHead {
			w.WriteHeader(status)
			return
		}
		writeError(w, status, code)
		return
	}

	q := r.URL.Query()
	switch {
	case key == "" && r.Method == http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case key == "" && r.Method == http.MethodGet:
		f.list(w, q.Get("prefix"), q.Get("delimiter"), q.Get("start-after"), q.Get("continuation-token"), q.Get("max-keys"))
	case key == "" && r.Method == http.MethodPost && q.Has("delete"):
		f.deleteObjects(w, r)
	case r.Method == http.MethodPost && q.Has("uploads"):
		f.initiate(w, r, key)
	case r.Method == http.MethodPut && q.Has("uploadId"):
		f.uploadPart(w, r, q.Get("uploadId"), q.Get("partNumber"))
	case r.Method == http.MethodPost && q.Has("uploadId"):
		f.complete(w, r, key, q.Get("uploadId"))
	case r.Method == http.MethodDelete && q.Has("uploadId"):
		f.mu.Lock()
		delete(f.uploads, q.Get("uploadId"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPut && r.Header.Get("X-Amz-Copy-Source") != "":
		f.copyObject(w, r, key)
	case r.Method == http.MethodPut:
		f.putObject(w, r, key)
	case r.Method == http.MethodGet || r.Method == http.MethodHead:
		f.getObject(w, r, key)
	case r.Method == http.MethodDelete:
		f.mu.Lock()
		delete(f.objects, key)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusNotImplemented, "NotImplemented")
	}
}

// checkWrite evaluates If-Match and If-None-Match against the current
// object.
func checkWrite(r *http.Request, obj *fakeObject, exists bool) bool {
	if m := r.Header.Get("If-None-Match"); m != "" {
		if exists && (m == "*" || m == obj.etag) {
			return false
		}
	}
	if m := r.Header.Get("If-Match"); m != "" {
		if !exists || m != obj.etag {
			return false
		}
	}
	return true
}

func (f *fakeS3) putObject(w http.ResponseWriter, r *http.Request, key string) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "IncompleteBody")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	obj, exists := f.objects[key]
	if !checkWrite(r, obj, exists) {
		writeError(w, http.StatusPreconditionFailed, "PreconditionFailed")
		return
	}
	obj = f.store(key, data, r.Header.Get("Content-Type"))
	w.Header().Set("ETag", obj.etag)
	w.Header().Set("X-Amz-Version-Id", obj.version)
	w.WriteHeader(http.StatusOK)
}

func (f *fakeS3) getObject(w http.ResponseWriter, r *http.Request, key string) {
	obj, ok := f.object(key)
	if !ok {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeError(w, http.StatusNotFound, "NoSuchKey")
		return
	}
	if v := r.URL.Query().Get("versionId"); v != "" && v != obj.version {
		writeError(w, http.StatusNotFound, "NoSuchVersion")
		return
	}

	if status := checkRead(r, obj); status != 0 {
		if r.Method == http.MethodHead || status == http.StatusNotModified {
			w.WriteHeader(status)
			return
		}
		writeError(w, status, "PreconditionFailed")
		return
	}

	data := obj.data
	status := http.StatusOK
	if rng := r.Header.Get("Range"); rng != "" {
		start, end, ok := parseRange(rng, len(data))
		if !ok {
			writeError(w, http.StatusRequestedRangeNotSatisfiable, "InvalidRange")
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end-1, len(data)))
		data = data[start:end]
		status = http.StatusPartialContent
	}

	w.Header().Set("ETag", obj.etag)
	w.Header().Set("Last-Modified", obj.modified.Format(http.TimeFormat))
	w.Header().Set("X-Amz-Version-Id", obj.version)
	if obj.contentType != "" {
		w.Header().Set("Content-Type", obj.contentType)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(status)
	if r.Method == http.MethodGet {
		_, _ = w.Write(data)
	}
}

func checkRead(r *http.Request, obj *fakeObject) int {
	if m := r.Header.Get("If-Match"); m != "" && m != obj.etag {
		return http.StatusPreconditionFailed
	}
	if s := r.Header.Get("If-Unmodified-Since"); s != "" {
		if t, err := http.ParseTime(s); err == nil && obj.modified.After(t) {
			return http.StatusPreconditionFailed
		}
	}
	if m := r.Header.Get("If-None-Match"); m != "" && (m == "*" || m == obj.etag) {
		return http.StatusNotModified
	}
	if s := r.Header.Get("If-Modified-Since"); s != "" {
		if t, err := http.ParseTime(s); err == nil && !obj.modified.After(t) {
			return http.StatusNotModified
		}
	}
	return 0
}

// parseRange accepts "bytes=a-b" and "bytes=a-".
func parseRange(header string, size int) (int, int, bool) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, 0, false
	}
	from, to, _ := strings.Cut(spec, "-")
	start, err := strconv.Atoi(from)
	if err != nil || start >= size {
		return 0, 0, false
	}
	end := size
	if to != "" {
		last, err := strconv.Atoi(to)
		if err != nil || last < start {
			return 0, 0, false
		}
		end = min(last+1, size)
	}
	return start, end, true
}

func (f *fakeS3) copyObject(w http.ResponseWriter, r *http.Request, key string) {
	source := strings.TrimPrefix(r.Header.Get("X-Amz-Copy-Source"), "/")
	_, srcKey, _ := strings.Cut(source, "/")
	srcKey, err := url.PathUnescape(srcKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidArgument")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	src, ok := f.objects[srcKey]
	if !ok {
		writeError(w, http.StatusNotFound, "NoSuchKey")
		return
	}
	obj := f.store(key, append([]byte(nil), src.data...), src.contentType)
	writeXML(w, struct {
		XMLName      xml.Name `xml:"CopyObjectResult"`
		ETag         string   `xml:"ETag"`
		LastModified string   `xml:"LastModified"`
	}{ETag: obj.etag, LastModified: obj.modified.Format(time.RFC3339)})
}

func (f *fakeS3) initiate(w http.ResponseWriter, r *http.Request, key string) {
	f.mu.Lock()
	f.nextID++
	id := fmt.Sprintf("upload-%d", f.nextID)
	f.uploads[id] = &fakeUpload{key: key, contentType: r.Header.Get("Content-Type"), parts: make(map[int][]byte)}
	f.mu.Unlock()

	writeXML(w, struct {
		XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
		Bucket   string   `xml:"Bucket"`
		Key      string   `xml:"Key"`
		UploadID string   `xml:"UploadId"`
	}{Bucket: testBucket, Key: key, UploadID: id})
}

func (f *fakeS3) uploadPart(w http.ResponseWriter, r *http.Request, uploadID, partNumber string) {
	n, err := strconv.Atoi(partNumber)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidArgument")
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "IncompleteBody")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	up, ok := f.uploads[uploadID]
	if !ok {
		writeError(w, http.StatusNotFound, "NoSuchUpload")
		return
	}
	up.parts[n] = data
	sum := md5.Sum(data)
	w.Header().Set("ETag", `"`+hex.EncodeToString(sum[:])+`"`)
	w.WriteHeader(http.StatusOK)
}

func (f *fakeS3) complete(w http.ResponseWriter, r *http.Request, key, uploadID string) {
	var req struct {
		Parts []struct {
			PartNumber int    `xml:"PartNumber"`
			ETag       string `xml:"ETag"`
		} `xml:"Part"`
	}
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "MalformedXML")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	up, ok := f.uploads[uploadID]
	if !ok {
		writeError(w, http.StatusNotFound, "NoSuchUpload")
		return
	}
	obj, exists := f.objects[key]
	if !checkWrite(r, obj, exists) {
		writeError(w, http.StatusPreconditionFailed, "PreconditionFailed")
		return
	}

	var data []byte
	for i, p := range req.Parts {
		if p.PartNumber != i+1 {
			writeError(w, http.StatusBadRequest, "InvalidPartOrder")
			return
		}
		part, ok := up.parts[p.PartNumber]
		if !ok {
			writeError(w, http.StatusBadRequest, "InvalidPart")
			return
		}
		data = append(data, part...)
	}
	delete(f.uploads, uploadID)
	obj = f.store(key, data, up.contentType)

	writeXML(w, struct {
		XMLName xml.Name `xml:"CompleteMultipartUploadResult"`
		Bucket  string   `xml:"Bucket"`
		Key     string   `xml:"Key"`
		ETag    string   `xml:"ETag"`
	}{Bucket: testBucket, Key: key, ETag: obj.etag})
}

func (f *fakeS3) deleteObjects(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Objects []struct {
			Key string `xml:"Key"`
		} `xml:"Object"`
	}
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "MalformedXML")
		return
	}

	f.mu.Lock()
	for _, o := range req.Objects {
		delete(f.objects, o.Key)
	}
	f.mu.Unlock()

	writeXML(w, struct {
		XMLName xml.Name `xml:"DeleteResult"`
	}{})
}

type listContent struct {
	Key          string `xml:"Key"`
	Size         int    `xml:"Size"`
	ETag         string `xml:"ETag"`
	LastModified string `xml:"LastModified"`
}

type listPrefix struct {
	Prefix string `xml:"Prefix"`
}

// list implements ListObjectsV2. The continuation token is the last key
// or common prefix returned.
func (f *fakeS3) list(w http.ResponseWriter, prefix, delimiter, startAfter, token, maxKeys string) {
	limit := 1000
	if n, err := strconv.Atoi(maxKeys); err == nil && n > 0 {
		limit = n
	}
	marker := startAfter
	if token != "" {
		marker = token
	}

	f.mu.Lock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	objects := make(map[string]*fakeObject, len(keys))
	for _, k := range keys {
		objects[k] = f.objects[k]
	}
	f.mu.Unlock()
	sort.Strings(keys)

	var (
		contents  []listContent
		prefixes  []listPrefix
		last      string
		truncated bool
	)
	for _, k := range keys {
		if k <= marker {
			continue
		}
		item := k
		isPrefix := false
		if delimiter != "" {
			if i := strings.Index(k[len(prefix):], delimiter); i >= 0 {
				item = k[:len(prefix)+i+len(delimiter)]
				isPrefix = true
			}
		}
		if item == last || (isPrefix && item <= marker) || (isPrefix && strings.HasPrefix(marker, item)) {
			continue
		}
		if len(contents)+len(prefixes) == limit {
			truncated = true
			break
		}
		last = item
		if isPrefix {
			prefixes = append(prefixes, listPrefix{Prefix: item})
			continue
		}
		obj := objects[k]
		contents = append(contents, listContent{
			Key:          k,
			Size:         len(obj.data),
			ETag:         obj.etag,
			LastModified: obj.modified.Format(time.RFC3339),
		})
	}

	result := struct {
		XMLName               xml.Name      `xml:"ListBucketResult"`
		Name                  string        `xml:"Name"`
		Prefix                string        `xml:"Prefix"`
		KeyCount              int           `xml:"KeyCount"`
		MaxKeys               int           `xml:"MaxKeys"`
		IsTruncated           bool          `xml:"IsTruncated"`
		NextContinuationToken string        `xml:"NextContinuationToken,omitempty"`
		Contents              []listContent `xml:"Contents"`
		CommonPrefixes        []listPrefix  `xml:"CommonPrefixes"`
	}{
		Name:           testBucket,
		Prefix:         prefix,
		KeyCount:       len(contents) + len(prefixes),
		MaxKeys:        limit,
		IsTruncated:    truncated,
		Contents:       contents,
		CommonPrefixes: prefixes,
	}
	if truncated {
		result.NextContinuationToken = last
	}
	writeXML(w, result)
}
