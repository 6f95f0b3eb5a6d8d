package cdek_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/cdek/pkg/cdek"
)

func TestGetRegions_Fixture(t *testing.T) {
	api := newFakeAPI(t)
	var rawQuery string
	var headers http.Header
	api.handle("GET /v2/location/regions", func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		headers = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"country_code":"TH","country":"Таиланд","region":"Провинция Яла","region_code":1451}]`))
	})
	client := newTestClient(t, api)

	regions, err := client.GetRegions(context.Background(), &cdek.RegionsQuery{
		CountryCodes: []string{"TH"},
		Size:         1,
	})
	require.NoError(t, err)

	require.Len(t, regions, 1)
	assert.Equal(t, cdek.Region{
		CountryCode: "TH",
		Country:     "Таиланд",
		Region:      "Провинция Яла",
		RegionCode:  1451,
	}, regions[0])

	assert.Equal(t, "country_codes=TH&size=1", rawQuery)
	assert.Equal(t, "Bearer token-1", headers.Get("Authorization"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	_, err = uuid.Parse(headers.Get("X-Request-ID"))
	assert.NoError(t, err)
}

func TestQuery_Encode(t *testing.T) {
	id := uuid.MustParse("72753031-2801-4186-a091-0be58cedfee7")
	q := cdek.Query{
		"size":          10,
		"country_codes": []string{"RU", "KZ"},
		"is_handout":    true,
		"weight":        1.5,
		"skip":          nil,
		"order_uuid":    id,
	}

	assert.Equal(t,
		"country_codes=RU%2CKZ&is_handout=true&order_uuid=72753031-2801-4186-a091-0be58cedfee7&size=10&weight=1.5",
		q.Encode())
	assert.Equal(t, q.Encode(), q.Encode())
}

func TestQuery_EncodePointers(t *testing.T) {
	size := 5
	handout := false
	var missing *int
	var missingID *uuid.UUID

	q := cdek.Query{
		"size":       &size,
		"is_handout": &handout,
		"page":       missing,
		"order_uuid": missingID,
	}

	assert.Equal(t, "is_handout=false&size=5", q.Encode())
}

func TestDo_APIError(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
	}{
		{"plain json", "application/json"},
		{"json with charset", "application/json; charset=UTF-8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI(t)
			api.handle("POST /v2/orders", func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"requests":[{"type":"CREATE","date_time":"2024-05-01T12:00:00+0000","state":"INVALID","errors":[{"code":"v2_field_is_empty","message":"[recipient] is empty"}]}]}`))
			})
			client := newTestClient(t, api)

			op, err := client.CreateOrder(context.Background(), &cdek.OrderRequest{TariffCode: 136})
			require.Error(t, err)
			assert.Nil(t, op)

			var apiErr *cdek.APIError
			require.True(t, errors.As(err, &apiErr))
			var httpErr *cdek.HTTPError
			assert.False(t, errors.As(err, &httpErr))

			assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
			assert.Equal(t, "400 Bad Request, "+api.baseURL()+"/orders", apiErr.Cause())
			problem := apiErr.Response.FirstProblem()
			require.NotNil(t, problem)
			assert.Equal(t, "v2_field_is_empty", problem.Code)
			assert.Contains(t, err.Error(), "v2_field_is_empty")
		})
	}
}

func TestDo_APIErrorUnstructuredBody(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("GET /v2/webhooks", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`not json at all`))
	})
	client := newTestClient(t, api)

	_, err := client.GetWebhooks(context.Background())

	var apiErr *cdek.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "not json at all", apiErr.Body)
	assert.Nil(t, apiErr.Response.FirstProblem())
	assert.True(t, cdek.IsRetryable(err))
}

func TestDo_HTTPError(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("GET /v2/deliverypoints", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	})
	client := newTestClient(t, api)

	points, err := client.GetDeliveryPoints(context.Background(), &cdek.DeliveryPointsQuery{CityCode: 270})
	require.Error(t, err)
	assert.Nil(t, points)

	var httpErr *cdek.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.Equal(t, "<html>bad gateway</html>", httpErr.Body)
	var apiErr *cdek.APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestDo_OnErrorSink(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("GET /v2/location/cities", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})

	var captured []error
	client := newTestClient(t, api, func(c *cdek.Config) {
		c.OnError = func(err error) { captured = append(captured, err) }
	})

	cities, err := client.GetCities(context.Background(), &cdek.CitiesQuery{City: "Новосибирск"})
	require.NoError(t, err)
	assert.Nil(t, cities)

	require.Len(t, captured, 1)
	var httpErr *cdek.HTTPError
	assert.True(t, errors.As(captured[0], &httpErr))
}

func TestDo_OnErrorSinkCapturesAuthFailure(t *testing.T) {
	api := newFakeAPI(t)
	var captured error
	client := newTestClient(t, api, func(c *cdek.Config) {
		c.Password = "wrong"
		c.OnError = func(err error) { captured = err }
	})

	op, err := client.DeleteOrder(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, op)

	var authErr *cdek.AuthError
	assert.True(t, errors.As(captured, &authErr))
}

func TestDo_SendsJSONBody(t *testing.T) {
	api := newFakeAPI(t)
	var received cdek.TariffRequest
	api.handle("POST /v2/calculator/tariff", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"delivery_sum": 540.0,
			"period_min":   2,
			"period_max":   3,
			"weight_calc":  1500,
			"total_sum":    540.0,
			"currency":     "RUB",
		})
	})
	client := newTestClient(t, api)

	quote, err := client.CalculateByTariff(context.Background(), &cdek.TariffRequest{
		TariffCode:   136,
		FromLocation: cdek.Location{Code: 270},
		ToLocation:   cdek.Location{Code: 44},
		Packages:     []cdek.Parcel{{Weight: 1500, Length: 20, Width: 15, Height: 10}},
	})
	require.NoError(t, err)

	assert.Equal(t, 136, received.TariffCode)
	assert.Equal(t, 270, received.FromLocation.Code)
	require.Len(t, received.Packages, 1)
	assert.Equal(t, 1500, received.Packages[0].Weight)

	assert.Equal(t, 540.0, quote.TotalSum)
	assert.Equal(t, 2, quote.PeriodMin)
	assert.Equal(t, "RUB", quote.Currency)
}

func TestGetOrder_PathParameter(t *testing.T) {
	api := newFakeAPI(t)
	id := uuid.MustParse("72753031-2801-4186-a091-0be58cedfee7")
	api.handle("GET /v2/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, id.String(), r.PathValue("id"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"entity": map[string]interface{}{
				"uuid":        id.String(),
				"cdek_number": "1106321645",
				"tariff_code": 136,
				"statuses": []map[string]string{
					{"code": "DELIVERED", "name": "Вручен", "date_time": "2020-08-12T10:00:00+0700"},
					{"code": "CREATED", "name": "Создан", "date_time": "2020-08-10T21:00:00+0700"},
				},
			},
		})
	})
	client := newTestClient(t, api)

	info, err := client.GetOrder(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, info.Entity)
	assert.Equal(t, "1106321645", info.Entity.CDEKNumber)
	assert.Equal(t, "DELIVERED", info.Entity.LatestStatus().Code)
}

func TestGetOrderByNumber_Query(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("GET /v2/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1106321645", r.URL.Query().Get("cdek_number"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"entity": map[string]interface{}{"uuid": uuid.NewString(), "cdek_number": "1106321645"},
		})
	})
	client := newTestClient(t, api)

	info, err := client.GetOrderByNumber(context.Background(), "1106321645")
	require.NoError(t, err)
	assert.Equal(t, "1106321645", info.Entity.CDEKNumber)
}

func TestDo_EmptyBody(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("DELETE /v2/webhooks/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	client := newTestClient(t, api)

	op, err := client.DeleteWebhook(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, op)

	out := map[string]string{"kept": "yes"}
	err = client.Delete(context.Background(), "/webhooks/"+uuid.NewString(), &out)
	require.NoError(t, err)
	assert.Equal(t, "yes", out["kept"])
}

func TestDo_GenericHelpers(t *testing.T) {
	api := newFakeAPI(t)
	var methods []string
	echo := func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		body, _ := io.ReadAll(r.Body)
		if len(body) == 0 {
			body = []byte(`{}`)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}
	api.handle("/v2/echo", echo)
	client := newTestClient(t, api)

	ctx := context.Background()
	var out map[string]interface{}
	require.NoError(t, client.Get(ctx, "/echo", cdek.Query{"a": 1}, &out))
	require.NoError(t, client.Post(ctx, "/echo", map[string]int{"n": 1}, &out))
	assert.Equal(t, float64(1), out["n"])
	require.NoError(t, client.Put(ctx, "/echo", map[string]int{"n": 2}, &out))
	assert.Equal(t, float64(2), out["n"])
	require.NoError(t, client.Patch(ctx, "/echo", map[string]int{"n": 3}, nil))
	require.NoError(t, client.Delete(ctx, "/echo", nil))

	assert.Equal(t, []string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete,
	}, methods)
}

func TestDownload(t *testing.T) {
	api := newFakeAPI(t)
	id := uuid.New()
	pdf := []byte("%PDF-1.4 fake")
	api.handle("GET /v2/print/orders/{file}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, id.String()+".pdf", r.PathValue("file"))
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("Content-Type"))
		assert.Zero(t, r.ContentLength)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(pdf)
	})
	client := newTestClient(t, api)

	body, err := client.DownloadOrderReceipt(context.Background(), id)
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, pdf, data)
}

func TestDownloadURL(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("GET /v2/print/barcodes/{file}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("barcode"))
	})
	client := newTestClient(t, api)

	body, err := client.DownloadURL(context.Background(), api.baseURL()+"/print/barcodes/"+uuid.NewString()+".pdf")
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Equal(t, "barcode", string(data))

	_, err = client.DownloadURL(context.Background(), "/print/barcodes/relative.pdf")
	assert.ErrorIs(t, err, cdek.ErrInvalidDownloadURL)
}

func TestDownloadURL_ForeignHostGetsNoToken(t *testing.T) {
	api := newFakeAPI(t)
	client := newTestClient(t, api)

	var authorization []string
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization = append(authorization, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("photo"))
	}))
	defer storage.Close()

	body, err := client.DownloadURL(context.Background(), storage.URL+"/photos/1.jpg")
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())

	assert.Equal(t, "photo", string(data))
	assert.Equal(t, []string{""}, authorization)
	assert.Equal(t, int32(0), api.tokenCalls.Load())
}

func TestDownload_ErrorClassificationAndSink(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("GET /v2/print/barcodes/{file}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"errors": []map[string]string{{"code": "v2_entity_not_found", "message": "not found"}},
		})
	})

	client := newTestClient(t, api)
	_, err := client.DownloadBarcode(context.Background(), uuid.New())
	assert.True(t, cdek.IsNotFound(err))
	var apiErr *cdek.APIError
	assert.True(t, errors.As(err, &apiErr))

	var captured error
	sinkClient := newTestClient(t, api, func(c *cdek.Config) {
		c.OnError = func(err error) { captured = err }
	})
	body, err := sinkClient.DownloadBarcode(context.Background(), uuid.New())
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.True(t, cdek.IsNotFound(captured))
}

func TestRetry_OptIn(t *testing.T) {
	flaky := func(calls *atomic.Int32) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) == 1 {
				http.Error(w, "try again", http.StatusServiceUnavailable)
				return
			}
			writeJSON(w, http.StatusOK, []cdek.Webhook{{UUID: uuid.NewString(), URL: "https://example.com/hook", Type: cdek.EventOrderStatus}})
		}
	}

	t.Run("disabled by default", func(t *testing.T) {
		api := newFakeAPI(t)
		var calls atomic.Int32
		api.handle("GET /v2/webhooks", flaky(&calls))
		client := newTestClient(t, api)

		_, err := client.GetWebhooks(context.Background())
		require.Error(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, cdek.StatusCode(err))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("enabled", func(t *testing.T) {
		api := newFakeAPI(t)
		var calls atomic.Int32
		api.handle("GET /v2/webhooks", flaky(&calls))
		client := newTestClient(t, api, func(c *cdek.Config) {
			c.RetryMax = 2
			c.RetryWaitMin = time.Millisecond
			c.RetryWaitMax = 5 * time.Millisecond
		})

		hooks, err := client.GetWebhooks(context.Background())
		require.NoError(t, err)
		require.Len(t, hooks, 1)
		assert.Equal(t, cdek.EventOrderStatus, hooks[0].Type)
		assert.Equal(t, int32(2), calls.Load())
	})
}

func TestDo_RecordsMetrics(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("GET /v2/location/regions", emptyRegions)
	api.handle("GET /v2/location/cities", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusTeapot)
	})
	rec := &recorder{}
	client, err := cdek.New(cdek.Config{
		Account:  testAccount,
		Password: testPassword,
		BaseURL:  api.baseURL(),
	}, cdek.WithRecorder(rec))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = client.GetRegions(ctx, nil)
	require.NoError(t, err)
	_, err = client.GetCities(ctx, nil)
	require.Error(t, err)

	assert.Equal(t, []string{"GET /location/regions 200", "GET /location/cities 418"}, rec.requests)
	assert.Equal(t, []string{"http"}, rec.errors)
	assert.Equal(t, []string{"success"}, rec.refresh)
}

func TestNew_Validation(t *testing.T) {
	_, err := cdek.New(cdek.Config{Password: "x"})
	assert.ErrorIs(t, err, cdek.ErrMissingCredentials)

	_, err = cdek.New(cdek.Config{Account: "a", Password: "b", BaseURL: "not a url"})
	assert.ErrorIs(t, err, cdek.ErrInvalidBaseURL)

	client, err := cdek.New(cdek.Config{Account: "a", Password: "b"})
	require.NoError(t, err)
	assert.Equal(t, cdek.ProductionURL, client.BaseURL())

	client, err = cdek.New(cdek.Config{Account: "a", Password: "b", BaseURL: cdek.SandboxURL + "/"})
	require.NoError(t, err)
	assert.Equal(t, cdek.SandboxURL, client.BaseURL())
}
