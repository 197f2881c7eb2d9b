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
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/h2non/gock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/factorykit/provision-core/pkg/configstore"
	"github.com/factorykit/provision-core/pkg/constants"
	"github.com/factorykit/provision-core/pkg/envstore"
	"github.com/factorykit/provision-core/pkg/service/filesystem"
	"github.com/factorykit/provision-core/pkg/servicemgr"
	"github.com/factorykit/provision-core/pkg/servicemgr/runners"
	"github.com/factorykit/provision-core/pkg/shopfloor"
)

var _ = Describe("Bridge", func() {
	var (
		ctx     context.Context
		env     *envstore.Store
		configs *configstore.Store
		manager *servicemgr.Manager
		router  *gin.Engine
	)

	document := fmt.Sprintf(`{
		"apiVersion": "1.0.0",
		"services": {
			"shopfloor_proxy": {"backend_url": %q},
			"dummy": {}
		},
		"bundles": [
			{"id": "main", "resources": ["firmware.bin"]}
		],
		"rulesets": [
			{"bundle_id": "main", "active": true}
		]
	}`, backendURL)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		var reader *strings.Reader
		if body == "" {
			reader = strings.NewReader("{}")
		} else {
			reader = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, path, reader)
		req.Header.Set("Content-Type", "application/json")
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, req)
		return recorder
	}

	decode := func(recorder *httptest.ResponseRecorder) map[string]interface{} {
		var payload map[string]interface{}
		Expect(json.Unmarshal(recorder.Body.Bytes(), &payload)).To(Succeed())
		return payload
	}

	activate := func() string {
		hash, err := configs.Stage(ctx, []byte(document))
		Expect(err).NotTo(HaveOccurred())
		Expect(configs.Activate(ctx, hash)).To(Succeed())
		return hash
	}

	BeforeEach(func() {
		ctx = context.Background()
		env = envstore.NewStore("/env", filesystem.NewMockFileSystem())
		Expect(env.Init(ctx)).To(Succeed())
		Expect(env.AddResource(ctx, "firmware.bin", []byte("payload"))).To(Succeed())

		registry, err := servicemgr.NewRegistry(runners.NewShopFloorProxy(), runners.NewDummy())
		Expect(err).NotTo(HaveOccurred())

		configs = configstore.NewStore(env, registry.Validators())
		manager = servicemgr.NewManager(registry, env)

		httpClient := &http.Client{}
		gock.InterceptClient(httpClient)
		backend := shopfloor.NewBackendClient(&interceptedClient{client: httpClient})

		router = shopfloor.NewBridge(configs, manager, env, backend, backendURL).Router()
	})

	AfterEach(func() {
		gock.Off()
		manager.StopAll(ctx)
	})

	Describe("device RPC", func() {
		It("answers ping locally with the protocol version", func() {
			hash := activate()

			recorder := do(http.MethodPost, "/rpc/ping", `{"sn": "SN1"}`)
			Expect(recorder.Code).To(Equal(http.StatusOK))

			payload := decode(recorder)
			Expect(payload["version"]).To(BeNumerically("==", constants.DUTRPCVersion))
			Expect(payload["config_hash"]).To(Equal(hash))
			Expect(payload["session_id"]).NotTo(BeEmpty())
		})

		It("answers get_time locally", func() {
			recorder := do(http.MethodPost, "/rpc/get_time", "")
			Expect(recorder.Code).To(Equal(http.StatusOK))

			payload := decode(recorder)
			Expect(payload["time"]).To(BeNumerically(">", 0))
		})

		It("forwards get_device_info to the backend and passes the response through", func() {
			activate()

			gock.New(backendURL).
				Post("/get_device_info").
				AddMatcher(func(request *http.Request, _ *gock.Request) (bool, error) {
					return request.Header.Get("Content-Type") == "application/json", nil
				}).
				Reply(200).
				JSON(map[string]string{"model": "X-42"})

			recorder := do(http.MethodPost, "/rpc/get_device_info",
				`{"sn": "SN1", "mac": "aa:bb:cc:dd:ee:ff", "stage": "SMT"}`)

			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(recorder.Body.String()).To(MatchJSON(`{"model": "X-42"}`))
		})

		It("falls back to the bootstrap backend when the configuration sets none", func() {
			minimal := `{
				"apiVersion": "1.0.0",
				"services": {"dummy": {}},
				"bundles": [{"id": "main", "resources": ["firmware.bin"]}],
				"rulesets": [{"bundle_id": "main", "active": true}]
			}`
			hash, err := configs.Stage(ctx, []byte(minimal))
			Expect(err).NotTo(HaveOccurred())
			Expect(configs.Activate(ctx, hash)).To(Succeed())

			gock.New(backendURL).
				Post("/get_device_info").
				Reply(200).
				JSON(map[string]string{"model": "X-42"})

			recorder := do(http.MethodPost, "/rpc/get_device_info", `{"sn": "SN1"}`)
			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(recorder.Body.String()).To(MatchJSON(`{"model": "X-42"}`))
		})

		It("maps backend rejections to 422 with the original message", func() {
			activate()

			gock.New(backendURL).
				Post("/report_test_result").
				Reply(409).
				JSON(map[string]string{"error": "duplicate test result"})

			recorder := do(http.MethodPost, "/rpc/report_test_result",
				`{"sn": "SN1", "test_id": "smt-01", "status": "PASSED"}`)

			Expect(recorder.Code).To(Equal(http.StatusUnprocessableEntity))
			Expect(decode(recorder)["error"]).To(Equal("duplicate test result"))
		})

		It("maps backend transport failures to 503", func() {
			activate()

			gock.New(backendURL).
				Post("/get_device_info").
				ReplyError(errors.New("connection refused"))

			recorder := do(http.MethodPost, "/rpc/get_device_info", `{"sn": "SN1"}`)
			Expect(recorder.Code).To(Equal(http.StatusServiceUnavailable))
		})

		It("rejects backend calls while no configuration is active", func() {
			recorder := do(http.MethodPost, "/rpc/get_device_info", `{"sn": "SN1"}`)
			Expect(recorder.Code).To(Equal(http.StatusServiceUnavailable))
		})

		It("rejects a report without test_id", func() {
			activate()

			recorder := do(http.MethodPost, "/rpc/report_test_result", `{"sn": "SN1", "status": "PASSED"}`)
			Expect(recorder.Code).To(Equal(http.StatusUnprocessableEntity))
		})

		It("lists and serves parameters from the parameter store", func() {
			Expect(env.FS().WriteFile(ctx, env.ParametersDir()+"/calibration.json",
				[]byte(`{"offset": 3}`), constants.EnvFilePerm)).To(Succeed())

			recorder := do(http.MethodPost, "/rpc/list_parameters", "")
			Expect(recorder.Code).To(Equal(http.StatusOK))
			payload := decode(recorder)
			Expect(payload["files"]).To(ContainElement("calibration.json"))

			recorder = do(http.MethodPost, "/rpc/get_parameter", `{"path": "calibration.json"}`)
			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(decode(recorder)["content"]).To(Equal(`{"offset": 3}`))
		})

		It("refuses parameter paths escaping the store", func() {
			recorder := do(http.MethodPost, "/rpc/get_parameter", `{"path": "../active_config"}`)
			Expect(recorder.Code).To(Equal(http.StatusUnprocessableEntity))
		})
	})

	Describe("admin surface", func() {
		It("stages, activates and lists configurations", func() {
			recorder := do(http.MethodPost, "/admin/configs", document)
			Expect(recorder.Code).To(Equal(http.StatusOK))
			hash := decode(recorder)["hash"].(string)
			Expect(hash).To(HaveLen(16))

			recorder = do(http.MethodPost, "/admin/configs/"+hash+"/activate", "")
			Expect(recorder.Code).To(Equal(http.StatusOK))
			payload := decode(recorder)
			Expect(payload["started"]).To(ContainElements("shopfloor_proxy", "dummy"))
			Expect(payload["failed"]).To(BeEmpty())

			recorder = do(http.MethodGet, "/admin/configs", "")
			Expect(recorder.Code).To(Equal(http.StatusOK))
			payload = decode(recorder)
			Expect(payload["active"]).To(Equal(hash))
			Expect(payload["history"]).To(ContainElement(hash))

			recorder = do(http.MethodGet, "/admin/services", "")
			Expect(recorder.Code).To(Equal(http.StatusOK))
			states := decode(recorder)["services"].(map[string]interface{})
			Expect(states["shopfloor_proxy"]).To(Equal(servicemgr.StateRunning))
		})

		It("rejects an invalid document with the full issue list", func() {
			recorder := do(http.MethodPost, "/admin/configs", `{"ip": "10.0.0.1", "apiVersion": "1.0.0", "services": {}}`)
			Expect(recorder.Code).To(Equal(http.StatusUnprocessableEntity))

			payload := decode(recorder)
			Expect(payload["issues"]).To(ContainElement(ContainSubstring("deprecated")))
		})

		It("returns 404 when activating a hash that was never staged", func() {
			recorder := do(http.MethodPost, "/admin/configs/0000000000000000/activate", "")
			Expect(recorder.Code).To(Equal(http.StatusNotFound))
		})
	})
})
