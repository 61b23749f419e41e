package protocol

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type trick struct {
	Leader int      `cbor:"1,keyasint"`
	Cards  []string `cbor:"2,keyasint"`
	Scores map[string]int
}

func TestCBOR_StreamOfMessages(t *testing.T) {
	codec, err := CBOR[trick]()
	require.NoError(t, err)

	want := []trick{
		{Leader: 0, Cards: []string{"roi de coeur", "excuse"}},
		{Leader: 3, Scores: map[string]int{"north": 41, "east": 50}},
		{},
	}

	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf)
	for _, tr := range want {
		require.NoError(t, enc.Encode(tr))
	}

	dec := codec.NewDecoder(&buf)
	for _, tr := range want {
		got, err := dec.Decode()
		require.NoError(t, err)
		assert.Equal(t, tr, got)
	}
	_, err = dec.Decode()
	assert.Equal(t, io.EOF, err)
}

func TestCBOR_Deterministic(t *testing.T) {
	codec, err := CBOR[trick]()
	require.NoError(t, err)

	v := trick{Scores: map[string]int{"a": 1, "b": 2, "c": 3, "d": 4, "e": 5}}
	var first, second bytes.Buffer
	require.NoError(t, codec.NewEncoder(&first).Encode(v))
	require.NoError(t, codec.NewEncoder(&second).Encode(v))
	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestCBOR_Truncated(t *testing.T) {
	codec, err := CBOR[trick]()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, codec.NewEncoder(&buf).Encode(trick{Cards: []string{"petit"}}))
	data := buf.Bytes()

	_, err = codec.NewDecoder(bytes.NewReader(data[:len(data)-2])).Decode()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestCBOR_MaxSize(t *testing.T) {
	plain, err := CBOR[[]byte]()
	require.NoError(t, err)
	limited, err := CBOR[[]byte](WithMaxSize(64))
	require.NoError(t, err)

	small := bytes.Repeat([]byte{0xaa}, 40)
	var buf bytes.Buffer
	enc := plain.NewEncoder(&buf)
	require.NoError(t, enc.Encode(small))
	require.NoError(t, enc.Encode(small))
	require.NoError(t, enc.Encode(bytes.Repeat([]byte{0xbb}, 100)))

	dec := limited.NewDecoder(&buf)
	for range 2 {
		got, err := dec.Decode()
		require.NoError(t, err)
		assert.Equal(t, small, got)
	}
	_, err = dec.Decode()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestCBOR_MaxSizeStopsReading(t *testing.T) {
	codec, err := CBOR[[]byte](WithMaxSize(64))
	require.NoError(t, err)

	// Header of a byte string claiming 1 GiB, followed by an endless body.
	header := []byte{0x5a, 0x40, 0x00, 0x00, 0x00}
	body := &countingReader{r: io.MultiReader(bytes.NewReader(header), zeroReader{})}

	_, err = codec.NewDecoder(body).Decode()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.LessOrEqual(t, body.n, 64)
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func TestProto_StreamOfMessages(t *testing.T) {
	codec := Proto(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })

	want := []string{"garde", "", "garde contre"}
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf)
	for _, s := range want {
		require.NoError(t, enc.Encode(wrapperspb.String(s)))
	}

	dec := codec.NewDecoder(&buf)
	for _, s := range want {
		got, err := dec.Decode()
		require.NoError(t, err)
		assert.True(t, proto.Equal(wrapperspb.String(s), got), "want %q, got %v", s, got)
	}
	_, err := dec.Decode()
	assert.Equal(t, io.EOF, err)
}

func TestProto_MaxSize(t *testing.T) {
	var buf bytes.Buffer
	codec := Proto(func() *wrapperspb.BytesValue { return &wrapperspb.BytesValue{} })
	require.NoError(t, codec.NewEncoder(&buf).Encode(wrapperspb.Bytes(make([]byte, 64))))

	small := Proto(func() *wrapperspb.BytesValue { return &wrapperspb.BytesValue{} }, WithMaxSize(16))
	_, err := small.NewDecoder(&buf).Decode()
	assert.Error(t, err)
}
