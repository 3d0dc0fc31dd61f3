package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/listenproof/internal/domain/model"
)

func TestOAuthRefresher(t *testing.T) {
	Convey("Given a token endpoint", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = r.ParseForm()
			if r.PostForm.Get("grant_type") != "refresh_token" || r.PostForm.Get("refresh_token") != "rt-good" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = fmt.Fprint(w, `{"error":"invalid_grant"}`)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprint(w, `{"access_token":"at-new","token_type":"Bearer","expires_in":3600}`)
		}))
		defer srv.Close()
		r := NewOAuthRefresher("client", "secret", srv.URL, srv.Client())
		ctx := context.Background()

		Convey("When the refresh token is accepted", func() {
			cred, err := r.Refresh(ctx, model.Credential{AccessToken: "at-old", RefreshToken: "rt-good"})

			Convey("Then a new access token should be returned and the refresh token kept", func() {
				So(err, ShouldBeNil)
				So(cred.AccessToken, ShouldEqual, "at-new")
				So(cred.RefreshToken, ShouldEqual, "rt-good")
				So(cred.Expiry.IsZero(), ShouldBeFalse)
			})
		})

		Convey("When the refresh token is rejected", func() {
			_, err := r.Refresh(ctx, model.Credential{RefreshToken: "rt-revoked"})

			Convey("Then the error should be an auth error", func() {
				So(errors.Is(err, ErrAuth), ShouldBeTrue)
			})
		})

		Convey("When there is no refresh token", func() {
			_, err := r.Refresh(ctx, model.Credential{AccessToken: "at"})

			Convey("Then no request should be needed to fail", func() {
				So(errors.Is(err, ErrAuth), ShouldBeTrue)
			})
		})
	})
}
