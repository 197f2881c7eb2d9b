// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shopfloor_test

import (
	"context"
	"errors"
	"net/http"

	"github.com/h2non/gock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/factorykit/provision-core/pkg/shopfloor"
)

// interceptedClient satisfies the HTTP client interface with a plain client
// gock can intercept.
type interceptedClient struct {
	client *http.Client
}

func (c *interceptedClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}

const backendURL = "http://backend.factory.local"

var _ = Describe("BackendClient", func() {
	var (
		ctx     context.Context
		backend *shopfloor.BackendClient
	)

	BeforeEach(func() {
		ctx = context.Background()

		httpClient := &http.Client{}
		gock.InterceptClient(httpClient)
		backend = shopfloor.NewBackendClient(&interceptedClient{client: httpClient})
	})

	AfterEach(func() {
		gock.Off()
	})

	It("returns the response body unchanged on success", func() {
		gock.New(backendURL).
			Post("/get_device_info").
			Reply(200).
			JSON(map[string]interface{}{"model": "X-42", "region": "EU"})

		raw, err := backend.Call(ctx, backendURL, "get_device_info", map[string]string{"sn": "SN1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(raw)).To(MatchJSON(`{"model": "X-42", "region": "EU"}`))
	})

	It("translates a backend rejection into a HandlerError with the original message", func() {
		gock.New(backendURL).
			Post("/get_device_info").
			Reply(422).
			JSON(map[string]string{"error": "unknown serial number SN1"})

		_, err := backend.Call(ctx, backendURL, "get_device_info", map[string]string{"sn": "SN1"})
		Expect(err).To(HaveOccurred())

		var handlerErr *shopfloor.HandlerError
		Expect(errors.As(err, &handlerErr)).To(BeTrue())
		Expect(handlerErr.Message).To(Equal("unknown serial number SN1"))
	})

	It("translates a backend 5xx into ErrShopFloorUnavailable", func() {
		gock.New(backendURL).
			Post("/report_test_result").
			Reply(502).
			BodyString("bad gateway")

		_, err := backend.Call(ctx, backendURL, "report_test_result", map[string]string{"sn": "SN1"})
		Expect(err).To(MatchError(shopfloor.ErrShopFloorUnavailable))
	})

	It("translates a transport failure into ErrShopFloorUnavailable", func() {
		gock.New(backendURL).
			Post("/get_device_info").
			ReplyError(errors.New("connection refused"))

		_, err := backend.Call(ctx, backendURL, "get_device_info", map[string]string{"sn": "SN1"})
		Expect(err).To(MatchError(shopfloor.ErrShopFloorUnavailable))
	})

	It("falls back to the raw body when the rejection is not JSON", func() {
		gock.New(backendURL).
			Post("/get_device_info").
			Reply(400).
			BodyString("malformed request")

		_, err := backend.Call(ctx, backendURL, "get_device_info", nil)

		var handlerErr *shopfloor.HandlerError
		Expect(errors.As(err, &handlerErr)).To(BeTrue())
		Expect(handlerErr.Message).To(Equal("malformed request"))
	})
})
