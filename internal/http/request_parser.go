package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"nota/internal/core"
	"nota/internal/extract"
)

// Manual form field names. Item fields repeat once per row.
const (
	fieldStore         = "store"
	fieldDate          = "date"
	fieldItemName      = "item_name"
	fieldItemCategory  = "item_category"
	fieldItemQuantity  = "item_quantity"
	fieldItemUnitPrice = "item_unit_price"
	fieldIndex         = "index"
	fieldImages        = "images"
)

// ParseDraft rebuilds the manual entry draft from a posted form. The item
// fields are read as parallel lists; a missing quantity defaults to 1 and a
// missing price to 0.
func ParseDraft(form url.Values) core.Draft {
	d := core.Draft{
		Store: sanitizeInput(form.Get(fieldStore)),
		Date:  sanitizeInput(form.Get(fieldDate)),
	}

	names := form[fieldItemName]
	cats := form[fieldItemCategory]
	qtys := form[fieldItemQuantity]
	prices := form[fieldItemUnitPrice]

	rows := max(len(names), len(cats), len(qtys), len(prices))
	for i := 0; i < rows; i++ {
		d.Items = append(d.Items, core.DraftItem{
			Name:      sanitizeInput(at(names, i)),
			Category:  sanitizeInput(at(cats, i)),
			Quantity:  parseQuantity(at(qtys, i)),
			UnitPrice: parseUnitPrice(at(prices, i)),
		})
	}
	d.Normalize()
	return d
}

func at(vals []string, i int) string {
	if i < len(vals) {
		return vals[i]
	}
	return ""
}

// parseQuantity returns 1 for an empty value and 0 for garbage, which the
// record validation then rejects.
func parseQuantity(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 1
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// parseUnitPrice accepts rupiah formatting such as "12.500". Invalid input
// becomes -1 so that the record validation reports it.
func parseUnitPrice(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := core.ParseRupiah(s)
	if err != nil {
		return -1
	}
	return v
}

// ParseIndex reads the row index posted by a remove button. It returns -1
// when no index was given.
func ParseIndex(form url.Values) int {
	v := strings.TrimSpace(form.Get(fieldIndex))
	if v == "" {
		return -1
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return i
}

// RequireMethod returns a 405 response when r.Method is not one of methods.
func RequireMethod(r *http.Request, methods ...string) *HTMXResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

func RequirePOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}

// ParseFormOrFail parses the request form and returns an error response on failure.
func ParseFormOrFail(r *http.Request) *HTMXResponseBuilder {
	if err := r.ParseForm(); err != nil {
		return BadRequestError("Format permintaan tidak valid")
	}
	return nil
}

var errImageTooLarge = errors.New("image too large")

// upload is one posted image, or the reason it was refused.
type upload struct {
	image extract.Image
	err   error
}

// readUploads reads every file posted under the images field, in order.
// A file over maxBytes is returned with errImageTooLarge instead of data.
func readUploads(headers []*multipart.FileHeader, maxBytes int64) []upload {
	out := make([]upload, 0, len(headers))
	for i, fh := range headers {
		name := fh.Filename
		if name == "" {
			name = fmt.Sprintf("image %d", i+1)
		}
		u := upload{image: extract.Image{Name: name, MIMEType: fh.Header.Get("Content-Type")}}
		if fh.Size > maxBytes {
			u.err = errImageTooLarge
			out = append(out, u)
			continue
		}
		data, err := readFile(fh, maxBytes)
		if err != nil {
			u.err = err
		}
		u.image.Data = data
		out = append(out, u)
	}
	return out
}

func readFile(fh *multipart.FileHeader, maxBytes int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %q: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload %q: %w", fh.Filename, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, errImageTooLarge
	}
	return data, nil
}
