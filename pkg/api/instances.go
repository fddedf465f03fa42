package api

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"db-monitor/pkg/model"
	"db-monitor/pkg/monitor"
	"db-monitor/pkg/store"
)

type instanceHandler struct {
	svc   *monitor.Service
	store store.InstanceStore
	log   logrus.FieldLogger
}

// instanceRequest is the add/update payload. Status is optional on update.
type instanceRequest struct {
	Name        string `json:"name"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	Database    string `json:"database"`
	Environment string `json:"environment"`
	Status      *int   `json:"status"`
}

func (req instanceRequest) apply(inst *model.Instance) {
	inst.Name = req.Name
	inst.Host = req.Host
	inst.Port = req.Port
	inst.Username = req.Username
	if req.Password != "" {
		inst.Password = req.Password
	}
	inst.Database = req.Database
	inst.Environment = req.Environment
	if req.Status != nil {
		inst.Status = *req.Status
	}
}

func (h *instanceHandler) register(mux *http.ServeMux, guard func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("GET /api/instance/list", guard(h.handleList))
	mux.HandleFunc("GET /api/instance/{id}", guard(h.handleGet))
	mux.HandleFunc("POST /api/instance/addInstance", guard(h.handleAdd))
	mux.HandleFunc("PUT /api/instance/{id}", guard(h.handleUpdate))
	mux.HandleFunc("DELETE /api/instance/{id}", guard(h.handleDelete))
	mux.HandleFunc("POST /api/instance/test-connection", guard(h.handleTestConnection))
}

// handleList accepts ?status=active to drop disabled instances.
func (h *instanceHandler) handleList(w http.ResponseWriter, r *http.Request) {
	list := h.store.ListInstances
	if r.URL.Query().Get("status") == "active" {
		list = h.store.ListActiveInstances
	}
	out, err := list()
	if err != nil {
		h.log.WithError(err).Error("list instances")
		fail(w, http.StatusInternalServerError, "internal server error")
		return
	}
	ok(w, redactAll(out))
}

func (h *instanceHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	inst, found := h.load(w, r)
	if !found {
		return
	}
	ok(w, inst.Redacted())
}

func (h *instanceHandler) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req instanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid payload")
		return
	}
	var inst model.Instance
	req.apply(&inst)
	if err := inst.Validate(); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.TestConnection(r.Context(), inst); err != nil {
		failErr(w, err)
		return
	}
	saved, err := h.store.CreateInstance(inst)
	if err != nil {
		h.log.WithError(err).WithField("instance", inst.Name).Error("create instance")
		fail(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.log.WithFields(logrus.Fields{"id": saved.ID, "instance": saved.Name, "host": saved.Host}).Info("instance added")
	ok(w, saved.Redacted())
}

func (h *instanceHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	inst, found := h.load(w, r)
	if !found {
		return
	}
	var req instanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid payload")
		return
	}
	req.apply(&inst)
	if err := inst.Validate(); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.TestConnection(r.Context(), inst); err != nil {
		failErr(w, err)
		return
	}
	saved, err := h.store.UpdateInstance(inst)
	if err != nil {
		h.log.WithError(err).WithField("id", inst.ID).Error("update instance")
		fail(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.log.WithFields(logrus.Fields{"id": saved.ID, "instance": saved.Name}).Info("instance updated")
	ok(w, saved.Redacted())
}

func (h *instanceHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		failErr(w, err)
		return
	}
	deleted, err := h.store.DeleteInstance(id)
	if err != nil {
		h.log.WithError(err).WithField("id", id).Error("delete instance")
		fail(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !deleted {
		failErr(w, monitor.ErrNotFound)
		return
	}
	h.log.WithField("id", id).Info("instance deleted")
	ok(w, map[string]bool{"deleted": true})
}

func (h *instanceHandler) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	var req instanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid payload")
		return
	}
	var inst model.Instance
	req.apply(&inst)
	if err := h.svc.TestConnection(r.Context(), inst); err != nil {
		failErr(w, err)
		return
	}
	ok(w, map[string]bool{"connected": true})
}

// load resolves the {id} path value, writing the error response itself.
func (h *instanceHandler) load(w http.ResponseWriter, r *http.Request) (model.Instance, bool) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		failErr(w, err)
		return model.Instance{}, false
	}
	inst, found, err := h.store.GetInstance(id)
	if err != nil {
		h.log.WithError(err).WithField("id", id).Error("load instance")
		fail(w, http.StatusInternalServerError, "internal server error")
		return model.Instance{}, false
	}
	if !found {
		failErr(w, monitor.ErrNotFound)
		return model.Instance{}, false
	}
	return inst, true
}
