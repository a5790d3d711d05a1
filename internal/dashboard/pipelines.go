package dashboard

import (
	"sort"
	"sync"

	"gitlab-insight/internal/shared"
	"gitlab-insight/pkg/realtime"
)

// ProjectStatus is one row of the pipeline board.
type ProjectStatus struct {
	ProjectID      int64  `json:"project_id"`
	Name           string `json:"name,omitempty"`
	Status         string `json:"status,omitempty"`
	PipelineID     int64  `json:"pipeline_id,omitempty"`
	PipelineRef    string `json:"pipeline_ref,omitempty"`
	PipelineStatus string `json:"pipeline_status,omitempty"`
	OpenMRs        int    `json:"open_merge_requests"`
	MergedMRs      int    `json:"merged_merge_requests"`
}

type mrKey struct {
	projectID int64
	iid       int64
}

// PipelineBoard tracks the latest project, pipeline and merge request state per project.
type PipelineBoard struct {
	mount
	mu       sync.RWMutex
	projects map[int64]*ProjectStatus
	mrStates map[mrKey]string
}

func NewPipelineBoard() *PipelineBoard {
	return &PipelineBoard{
		projects: make(map[int64]*ProjectStatus),
		mrStates: make(map[mrKey]string),
	}
}

func (b *PipelineBoard) Mount(src realtime.Subscriber) {
	b.attach(src, func(s realtime.Subscriber) []*realtime.Subscription {
		return []*realtime.Subscription{
			realtime.OnJSON(s, realtime.TypeProjectUpdate, b.applyProject),
			realtime.OnJSON(s, realtime.TypePipelineUpdate, b.applyPipeline),
			realtime.OnJSON(s, realtime.TypeMergeRequestUpdate, b.applyMergeRequest),
		}
	})
}

func (b *PipelineBoard) Unmount() { b.detach() }

// Snapshot returns one row per known project ordered by project id.
func (b *PipelineBoard) Snapshot() []ProjectStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]ProjectStatus, 0, len(b.projects))
	for _, p := range b.projects {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectID < out[j].ProjectID })
	return out
}

// Project returns the row of a single project.
func (b *PipelineBoard) Project(id int64) (ProjectStatus, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.projects[id]
	if !ok {
		return ProjectStatus{}, false
	}
	return *p, true
}

// row returns the project row, creating it; b.mu must be held
func (b *PipelineBoard) row(id int64) *ProjectStatus {
	p, ok := b.projects[id]
	if !ok {
		p = &ProjectStatus{ProjectID: id}
		b.projects[id] = p
	}
	return p
}

func (b *PipelineBoard) applyProject(u shared.ProjectUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.row(u.ProjectID)
	if u.Name != "" {
		p.Name = u.Name
	}
	if u.Status != "" {
		p.Status = u.Status
	}
}

func (b *PipelineBoard) applyPipeline(u shared.PipelineUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.row(u.ProjectID)
	// an older pipeline finishing late must not hide the newest one
	if u.PipelineID < p.PipelineID {
		return
	}
	p.PipelineID = u.PipelineID
	p.PipelineRef = u.Ref
	p.PipelineStatus = u.Status
}

func (b *PipelineBoard) applyMergeRequest(u shared.MergeRequestUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.row(u.ProjectID)
	key := mrKey{projectID: u.ProjectID, iid: u.IID}
	switch b.mrStates[key] {
	case "opened":
		p.OpenMRs--
	case "merged":
		p.MergedMRs--
	}
	b.mrStates[key] = u.State
	switch u.State {
	case "opened":
		p.OpenMRs++
	case "merged":
		p.MergedMRs++
	}
}
