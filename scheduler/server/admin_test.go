package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Admin_StatusAndNodes(t *testing.T) {
	e := setupScheduler(t, Config{})
	e.startJobAndTask(t)

	r := mux.NewRouter()
	e.s.RegisterAdmin(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", StatusPath, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var st Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 1, st.RunningJobs)
	assert.Equal(t, 1, st.RunningTasks)
	assert.True(t, st.Fresh)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", NodesPath, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var nodes []NodeView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nodes))
	require.Len(t, nodes, 1)
	n := nodes[0]
	assert.Equal(t, "node1", n.Name)
	assert.Equal(t, "HEALTHY", n.Status)
	assert.Equal(t, 4, n.CPUs)
	assert.Equal(t, 3, n.ReservedCPUs)
	assert.Equal(t, 5.0, n.ReservedRAMGB)
	assert.Equal(t, 1, n.RunningJobs)
	assert.Equal(t, 1, n.RunningTasks)
}
