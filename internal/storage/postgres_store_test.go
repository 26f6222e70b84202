package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

func TestMalformedID(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&pq.Error{Code: "22P02"}, true},
		{fmt.Errorf("select: %w", &pq.Error{Code: "22P02"}), true},
		{&pq.Error{Code: "23505"}, false},
		{errors.New("connection refused"), false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := malformedID(tc.err); got != tc.want {
			t.Errorf("malformedID(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
