package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/appforge-ai/appforge/internal/orchestrator"
	"github.com/appforge-ai/appforge/internal/pipeline"
	"github.com/appforge-ai/appforge/internal/schedule"
	"github.com/appforge-ai/appforge/internal/skills"
	"github.com/appforge-ai/appforge/internal/store"
	"github.com/appforge-ai/appforge/internal/swarm"
)

func (s *Server) registerAPI(mux *http.ServeMux) {
	// Pipeline
	mux.HandleFunc("POST /api/pipeline/start", s.startPipeline)
	mux.HandleFunc("POST /api/pipeline/quickstart", s.quickstartPipeline)
	mux.HandleFunc("POST /api/pipeline/feedback", s.resumePipeline)

	// Presets
	mux.HandleFunc("GET /api/presets", s.listPresets)

	// Run journal
	mux.HandleFunc("GET /api/runs", s.listRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.getRun)

	// Skill cache
	mux.HandleFunc("GET /api/skills", s.listSkills)
	mux.HandleFunc("POST /api/skills", s.createSkill)
	mux.HandleFunc("POST /api/skills/search", s.searchSkills)
	mux.HandleFunc("GET /api/skills/{id}", s.getSkill)
	mux.HandleFunc("DELETE /api/skills/{id}", s.deleteSkill)
	mux.HandleFunc("POST /api/skills/{id}/used", s.markSkillUsed)
	mux.HandleFunc("PUT /api/skills/{id}/quality", s.rateSkill)

	// Swarm blueprints
	mux.HandleFunc("GET /api/swarms", s.listSwarms)
	mux.HandleFunc("POST /api/swarms", s.createSwarm)
	mux.HandleFunc("GET /api/swarms/{id}", s.getSwarm)
	mux.HandleFunc("DELETE /api/swarms/{id}", s.deleteSwarm)

	// Scheduled missions
	mux.HandleFunc("GET /api/missions", s.listMissions)
	mux.HandleFunc("POST /api/missions", s.createMission)
	mux.HandleFunc("PUT /api/missions/{id}", s.updateMission)
	mux.HandleFunc("DELETE /api/missions/{id}", s.deleteMission)

	// Secrets
	mux.HandleFunc("GET /api/secrets", s.listSecrets)
	mux.HandleFunc("POST /api/secrets", s.createSecret)
	mux.HandleFunc("GET /api/secrets/{id}", s.getSecret)
	mux.HandleFunc("DELETE /api/secrets/{id}", s.deleteSecret)

	// System
	mux.HandleFunc("GET /api/status", s.getStatus)
}

func (s *Server) startPipeline(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	out, err := s.orch.Start(r.Context(), req)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	jsonResponse(w, out)
}

// quickstartPipeline accepts input alone: the router picks the preset
// swarm, then the run proceeds exactly like a normal start.
func (s *Server) quickstartPipeline(w http.ResponseWriter, r *http.Request) {
	if s.router == nil {
		jsonError(w, "no presets configured", http.StatusServiceUnavailable)
		return
	}

	var body struct {
		Input      string  `json:"input"`
		UserID     string  `json:"userId,omitempty"`
		MinQuality float64 `json:"minQuality,omitempty"`
		SkipCache  bool    `json:"skipCache,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Input == "" {
		jsonError(w, "input is required", http.StatusBadRequest)
		return
	}

	preset, cleaned, err := s.router.Route(r.Context(), body.Input)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	sw, err := s.presets.Swarm(preset)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out, err := s.orch.Start(r.Context(), orchestrator.StartRequest{
		Swarm:      sw,
		Input:      cleaned,
		UserID:     body.UserID,
		MinQuality: body.MinQuality,
		SkipCache:  body.SkipCache,
	})
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	jsonResponse(w, map[string]any{"preset": preset, "run": out})
}

func (s *Server) listPresets(w http.ResponseWriter, r *http.Request) {
	if s.presets == nil {
		jsonResponse(w, []map[string]string{})
		return
	}
	missions := s.presets.Missions()
	out := make([]map[string]string, 0, len(missions))
	for _, name := range s.presets.Names() {
		out = append(out, map[string]string{"name": name, "mission": missions[name]})
	}
	jsonResponse(w, out)
}

func (s *Server) resumePipeline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RunID          string                       `json:"runId,omitempty"`
		SuspendedState *pipeline.SuspendedExecution `json:"suspendedState"`
		Feedback       pipeline.Feedback            `json:"feedback"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Feedback.CommandID == "" {
		jsonError(w, "feedback.commandId is required", http.StatusBadRequest)
		return
	}

	out, err := s.orch.Resume(r.Context(), req.RunID, req.SuspendedState, req.Feedback)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, out)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(50)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []store.PipelineRun{}
	}
	jsonResponse(w, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, run)
}

func (s *Server) listSkills(w http.ResponseWriter, r *http.Request) {
	list, err := s.skills.List(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []store.Skill{}
	}
	jsonResponse(w, list)
}

func (s *Server) createSkill(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID          string            `json:"userId,omitempty"`
		Name            string            `json:"name,omitempty"`
		GoalDescription string            `json:"goalDescription"`
		Reasoning       string            `json:"reasoningSummary,omitempty"`
		SolutionCode    string            `json:"solutionCode"`
		SolutionFiles   []store.SkillFile `json:"solutionFiles,omitempty"`
		Tags            []string          `json:"tags,omitempty"`
		QualityScore    float64           `json:"qualityScore,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sk, err := s.skills.Save(r.Context(), skills.SaveInput{
		UserID:      body.UserID,
		Name:        body.Name,
		Description: body.GoalDescription,
		Reasoning:   body.Reasoning,
		Code:        body.SolutionCode,
		Files:       body.SolutionFiles,
		Tags:        body.Tags,
		Quality:     body.QualityScore,
	})
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"saved": false, "error": err.Error()})
		return
	}
	jsonResponse(w, map[string]any{"saved": true, "skillId": sk.ID})
}

func (s *Server) searchSkills(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID     string  `json:"userId,omitempty"`
		Query      string  `json:"query"`
		Threshold  float64 `json:"similarityThreshold,omitempty"`
		Limit      int     `json:"limit,omitempty"`
		MinQuality float64 `json:"minQualityScore,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Query == "" {
		jsonError(w, "query is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	matches, err := s.skills.Search(r.Context(), body.UserID, body.Query, skills.SearchOptions{
		Threshold:  body.Threshold,
		Limit:      body.Limit,
		MinQuality: body.MinQuality,
	})
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if matches == nil {
		matches = []skills.Found{}
	}
	jsonResponse(w, map[string]any{
		"matches":   matches,
		"queryTime": time.Since(start).String(),
	})
}

func (s *Server) getSkill(w http.ResponseWriter, r *http.Request) {
	sk, err := s.skills.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if sk == nil {
		jsonError(w, "skill not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, sk)
}

func (s *Server) deleteSkill(w http.ResponseWriter, r *http.Request) {
	if err := s.skills.Delete(r.Context(), r.PathValue("id")); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "deleted"})
}

func (s *Server) markSkillUsed(w http.ResponseWriter, r *http.Request) {
	if err := s.skills.RecordUse(r.Context(), r.PathValue("id")); err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	jsonResponse(w, map[string]string{"status": "ok"})
}

func (s *Server) rateSkill(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Score int `json:"qualityScore"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.skills.UpdateQuality(r.Context(), r.PathValue("id"), body.Score); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": err.Error()})
		return
	}
	jsonResponse(w, map[string]bool{"success": true})
}

func (s *Server) listSwarms(w http.ResponseWriter, r *http.Request) {
	defs, err := s.store.ListSwarms()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if defs == nil {
		defs = []store.SwarmDef{}
	}
	jsonResponse(w, defs)
}

func (s *Server) createSwarm(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID      string        `json:"id,omitempty"`
		Name    string        `json:"name"`
		Mission string        `json:"mission"`
		Agents  []swarm.Agent `json:"agents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.ID == "" {
		body.ID = uuid.New().String()
	}

	if err := swarm.Validate(swarm.Swarm{ID: body.ID, Mission: body.Mission, Agents: body.Agents}); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	agents, err := json.Marshal(body.Agents)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	def := &store.SwarmDef{ID: body.ID, Name: body.Name, Mission: body.Mission, Agents: agents}
	if err := s.store.SaveSwarm(def); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, def)
}

func (s *Server) getSwarm(w http.ResponseWriter, r *http.Request) {
	def, err := s.store.GetSwarm(r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if def == nil {
		jsonError(w, "swarm not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, def)
}

func (s *Server) deleteSwarm(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSwarm(r.PathValue("id")); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "deleted"})
}

func (s *Server) listMissions(w http.ResponseWriter, r *http.Request) {
	missions, err := s.store.ListMissions()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]map[string]any, 0, len(missions))
	for _, m := range missions {
		out = append(out, map[string]any{
			"id":          m.ID,
			"swarm_id":    m.SwarmID,
			"name":        m.Name,
			"schedule":    m.Schedule,
			"description": schedule.Describe(m.Schedule),
			"input":       m.Input,
			"status":      m.Status,
			"next_run_at": m.NextRunAt,
			"last_run_at": m.LastRunAt,
			"last_status": m.LastStatus,
			"last_error":  m.LastError,
		})
	}
	jsonResponse(w, out)
}

type missionRequest struct {
	SwarmID  string `json:"swarmId"`
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Input    string `json:"input,omitempty"`
	Status   string `json:"status,omitempty"`
}

func (s *Server) createMission(w http.ResponseWriter, r *http.Request) {
	var body missionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	m, err := s.buildMission(uuid.New().String(), body)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.SaveMission(m); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, m)
}

func (s *Server) updateMission(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := s.store.GetMission(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if existing == nil {
		jsonError(w, "mission not found", http.StatusNotFound)
		return
	}

	var body missionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	m, err := s.buildMission(id, body)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.SaveMission(m); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, m)
}

func (s *Server) buildMission(id string, body missionRequest) (*store.Mission, error) {
	if body.SwarmID == "" || body.Name == "" {
		return nil, fmt.Errorf("swarmId and name are required")
	}
	def, err := s.store.GetSwarm(body.SwarmID)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, fmt.Errorf("swarm not found: %s", body.SwarmID)
	}

	normalized, err := schedule.Normalize(body.Schedule)
	if err != nil {
		return nil, err
	}

	status := body.Status
	if status == "" {
		status = "active"
	}

	return &store.Mission{
		ID:        id,
		SwarmID:   body.SwarmID,
		Name:      body.Name,
		Schedule:  normalized,
		Input:     body.Input,
		Status:    status,
		NextRunAt: schedule.NextRun(normalized),
	}, nil
}

func (s *Server) deleteMission(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteMission(r.PathValue("id")); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "deleted"})
}

func (s *Server) listSecrets(w http.ResponseWriter, r *http.Request) {
	secrets, err := s.store.ListSecrets()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if secrets == nil {
		secrets = []store.Secret{}
	}
	jsonResponse(w, secrets)
}

func (s *Server) createSecret(w http.ResponseWriter, r *http.Request) {
	if s.vault == nil {
		jsonError(w, "vault not configured", http.StatusServiceUnavailable)
		return
	}

	var body struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		Value       string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Name == "" || body.Value == "" {
		jsonError(w, "name and value are required", http.StatusBadRequest)
		return
	}

	ciphertext, nonce, err := s.vault.Seal([]byte(body.Value))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	sec := &store.Secret{
		ID:          uuid.New().String(),
		Name:        body.Name,
		Description: body.Description,
		Value:       ciphertext,
		Nonce:       nonce,
	}
	if err := s.store.SaveSecret(sec); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, sec)
}

func (s *Server) getSecret(w http.ResponseWriter, r *http.Request) {
	if s.vault == nil {
		jsonError(w, "vault not configured", http.StatusServiceUnavailable)
		return
	}

	sec, err := s.store.GetSecret(r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if sec == nil {
		jsonError(w, "secret not found", http.StatusNotFound)
		return
	}

	plaintext, err := s.vault.Open(sec.Value, sec.Nonce)
	if err != nil {
		jsonError(w, "decrypt failed", http.StatusInternalServerError)
		return
	}

	jsonResponse(w, map[string]any{
		"id":          sec.ID,
		"name":        sec.Name,
		"description": sec.Description,
		"value":       string(plaintext),
		"created_at":  sec.CreatedAt,
		"updated_at":  sec.UpdatedAt,
	})
}

func (s *Server) deleteSecret(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSecret(r.PathValue("id")); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "deleted"})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	runs, _ := s.store.ListRuns(50)
	swarms, _ := s.store.ListSwarms()
	missions, _ := s.store.ListMissions()

	counts := map[string]int{}
	for _, run := range runs {
		counts[run.Status]++
	}

	activeMissions := 0
	for _, m := range missions {
		if m.Status == "active" {
			activeMissions++
		}
	}

	status := map[string]any{
		"version":         s.version,
		"uptime":          formatUptime(time.Since(s.startedAt)),
		"swarms":          len(swarms),
		"recent_runs":     counts,
		"active_missions": activeMissions,
		"skills_indexed":  0,
	}
	if s.skills != nil {
		all, _ := s.skills.List(r.Context(), "")
		status["skills_indexed"] = len(all)
	}
	jsonResponse(w, status)
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
