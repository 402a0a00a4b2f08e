package utils

import (
	"bytes"
	"mime/multipart"
	"net/textproto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestFileHeader creates a multipart.FileHeader for testing
func createTestFileHeader(filename string, size int64, content []byte) *multipart.FileHeader {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="`+filename+`"`)
	h.Set("Content-Type", "application/octet-stream")
	part, _ := writer.CreatePart(h)
	part.Write(content)
	writer.Close()

	reader := multipart.NewReader(body, writer.Boundary())
	form, _ := reader.ReadForm(int64(len(content)) + 1024)
	defer form.RemoveAll()

	if len(form.File["image"]) > 0 {
		fileHeader := form.File["image"][0]
		// Override size for testing purposes
		fileHeader.Size = size
		return fileHeader
	}

	return nil
}

func TestValidateImageFile(t *testing.T) {
	content := []byte("fake image content")

	tests := []struct {
		name         string
		filename     string
		size         int64
		expectedCode string
	}{
		{name: "png accepted", filename: "burger.png", size: int64(len(content))},
		{name: "jpg accepted", filename: "burger.jpg", size: int64(len(content))},
		{name: "jpeg uppercase accepted", filename: "BURGER.JPEG", size: int64(len(content))},
		{name: "webp accepted", filename: "burger.webp", size: int64(len(content))},
		{name: "exactly at limit", filename: "burger.png", size: MaxImageSize},
		{name: "too large", filename: "burger.png", size: MaxImageSize + 1, expectedCode: "FILE_TOO_LARGE"},
		{name: "gif rejected", filename: "burger.gif", size: int64(len(content)), expectedCode: "INVALID_FILE_FORMAT"},
		{name: "no extension", filename: "burger", size: int64(len(content)), expectedCode: "INVALID_FILE_FORMAT"},
		{name: "double extension", filename: "burger.png.exe", size: int64(len(content)), expectedCode: "INVALID_FILE_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fileHeader := createTestFileHeader(tt.filename, tt.size, content)
			require.NotNil(t, fileHeader)

			err := ValidateImageFile(fileHeader)
			if tt.expectedCode == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			fileErr, ok := err.(*FileUploadError)
			require.True(t, ok, "Error should be of type FileUploadError")
			assert.Equal(t, tt.expectedCode, fileErr.Code)
		})
	}
}

func TestImageContentType(t *testing.T) {
	assert.Equal(t, "image/png", ImageContentType("a.png"))
	assert.Equal(t, "image/jpeg", ImageContentType("a.JPG"))
	assert.Equal(t, "image/jpeg", ImageContentType("a.jpeg"))
	assert.Equal(t, "image/webp", ImageContentType("a.webp"))
	assert.Equal(t, "", ImageContentType("a.svg"))
}

func TestMenuImageKey(t *testing.T) {
	now := time.Unix(1700000000, 0)

	assert.Equal(t, "menu/12/1700000000_burger.png", MenuImageKey(12, "burger.png", now))
	assert.Equal(t, "menu/3/1700000000_double_cheese_.png", MenuImageKey(3, "double cheese!.png", now))
	assert.Equal(t, "menu/3/1700000000_photo.jpg", MenuImageKey(3, "../../etc/photo.jpg", now))
}
