package turso

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/emiliopalmerini/abcsmc/internal/domain"
	"github.com/emiliopalmerini/abcsmc/internal/infrastructure/database"
	"github.com/emiliopalmerini/abcsmc/internal/util"
)

// readRetries bounds how often a read is repeated after the remote server
// dropped its stream.
const readRetries = 3

type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) CreateAnalysis(ctx context.Context, a *domain.Analysis) error {
	modelNames, err := json.Marshal(a.ModelNames)
	if err != nil {
		return fmt.Errorf("failed to encode model names: %w", err)
	}
	observed, err := json.Marshal(a.ObservedSumStat)
	if err != nil {
		return fmt.Errorf("failed to encode observed summary statistics: %w", err)
	}
	options, err := json.Marshal(a.Options)
	if err != nil {
		return fmt.Errorf("failed to encode options: %w", err)
	}
	var groundTruth sql.NullString
	if a.GroundTruthParameter != nil {
		b, err := json.Marshal(a.GroundTruthParameter)
		if err != nil {
			return fmt.Errorf("failed to encode ground truth parameter: %w", err)
		}
		groundTruth = util.NullString(string(b))
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO abc_smc (uuid, start_time, end_time, model_names, ground_truth_model,
			ground_truth_parameter, observed_sum_stat, options, distance_function, epsilon_function)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.UUID, util.FormatTime(a.StartTime), util.NullTime(a.EndTime), string(modelNames),
		util.NullIndex(a.GroundTruthModel), groundTruth, string(observed), string(options),
		orEmptyObject(a.DistanceConfig), orEmptyObject(a.EpsilonConfig))
	if err != nil {
		return fmt.Errorf("failed to create analysis: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read analysis id: %w", err)
	}
	a.ID = id
	return nil
}

func orEmptyObject(s string) string {
	if s == "" {
		return "{}"
	}
	return s
}

const analysisColumns = `id, uuid, start_time, end_time, model_names, ground_truth_model,
	ground_truth_parameter, observed_sum_stat, options, distance_function, epsilon_function`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (*domain.Analysis, error) {
	var (
		a                             domain.Analysis
		startTime                     string
		endTime, groundTruth          sql.NullString
		groundTruthModel              sql.NullInt64
		modelNames, observed, options string
	)
	err := row.Scan(&a.ID, &a.UUID, &startTime, &endTime, &modelNames, &groundTruthModel,
		&groundTruth, &observed, &options, &a.DistanceConfig, &a.EpsilonConfig)
	if err != nil {
		return nil, err
	}
	a.StartTime = util.ParseTime(startTime)
	a.EndTime = util.TimeFromNull(endTime)
	a.GroundTruthModel = util.IndexFromNull(groundTruthModel)
	if err := json.Unmarshal([]byte(modelNames), &a.ModelNames); err != nil {
		return nil, fmt.Errorf("failed to decode model names: %w", err)
	}
	if err := json.Unmarshal([]byte(observed), &a.ObservedSumStat); err != nil {
		return nil, fmt.Errorf("failed to decode observed summary statistics: %w", err)
	}
	if err := json.Unmarshal([]byte(options), &a.Options); err != nil {
		return nil, fmt.Errorf("failed to decode options: %w", err)
	}
	if groundTruth.Valid {
		if err := json.Unmarshal([]byte(groundTruth.String), &a.GroundTruthParameter); err != nil {
			return nil, fmt.Errorf("failed to decode ground truth parameter: %w", err)
		}
	}
	return &a, nil
}

func (r *HistoryRepository) GetAnalysis(ctx context.Context, id int64) (*domain.Analysis, error) {
	return database.WithRetry(ctx, readRetries, func() (*domain.Analysis, error) { return r.getAnalysis(ctx, id) })
}

func (r *HistoryRepository) getAnalysis(ctx context.Context, id int64) (*domain.Analysis, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+analysisColumns+` FROM abc_smc WHERE id = ?`, id)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return a, nil
}

func (r *HistoryRepository) ListAnalyses(ctx context.Context) ([]*domain.Analysis, error) {
	return database.WithRetry(ctx, readRetries, func() ([]*domain.Analysis, error) { return r.listAnalyses(ctx) })
}

func (r *HistoryRepository) listAnalyses(ctx context.Context) ([]*domain.Analysis, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+analysisColumns+` FROM abc_smc ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var out []*domain.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *HistoryRepository) FinishAnalysis(ctx context.Context, id int64, end time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE abc_smc SET end_time = ? WHERE id = ?`, util.FormatTime(end), id)
	if err != nil {
		return fmt.Errorf("failed to finish analysis: %w", err)
	}
	return requireRow(res, id)
}

func (r *HistoryRepository) DeleteAnalysis(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM abc_smc WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("analysis %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *HistoryRepository) AppendPopulation(ctx context.Context, analysisID int64, pop *domain.Population, modelNames []string) error {
	for i, p := range pop.Particles {
		if p.M < 0 || p.M >= len(modelNames) {
			return fmt.Errorf("particle %d has model index %d outside [0, %d)", i, p.M, len(modelNames))
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO populations (abc_smc_id, t, epsilon, nr_samples, population_end_time)
		VALUES (?, ?, ?, ?, ?)`,
		analysisID, pop.T, pop.Epsilon, pop.NrSimulations, util.FormatTime(pop.EndTime))
	if err != nil {
		return fmt.Errorf("failed to insert population %d: %w", pop.T, err)
	}
	populationID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read population id: %w", err)
	}

	modelIDs := make([]int64, len(modelNames))
	probs := pop.ModelProbabilities(len(modelNames))
	for m, name := range modelNames {
		res, err := tx.ExecContext(ctx, `INSERT INTO models (population_id, m, name, p_model) VALUES (?, ?, ?, ?)`,
			populationID, m, name, probs[m])
		if err != nil {
			return fmt.Errorf("failed to insert model %d: %w", m, err)
		}
		if modelIDs[m], err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read model id: %w", err)
		}
	}

	insertParticle, err := tx.PrepareContext(ctx, `INSERT INTO particles (model_id, w, nr_simulations) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare particle insert: %w", err)
	}
	defer insertParticle.Close()
	insertParameter, err := tx.PrepareContext(ctx, `INSERT INTO parameters (particle_id, name, value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare parameter insert: %w", err)
	}
	defer insertParameter.Close()
	insertSample, err := tx.PrepareContext(ctx, `INSERT INTO samples (particle_id, distance) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer insertSample.Close()
	insertSumStat, err := tx.PrepareContext(ctx, `INSERT INTO summary_statistics (sample_id, name, value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare summary statistic insert: %w", err)
	}
	defer insertSumStat.Close()

	for _, p := range pop.Particles {
		res, err := insertParticle.ExecContext(ctx, modelIDs[p.M], p.Weight, p.NrSimulations)
		if err != nil {
			return fmt.Errorf("failed to insert particle: %w", err)
		}
		particleID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read particle id: %w", err)
		}
		for _, name := range p.Parameter.Keys() {
			if _, err := insertParameter.ExecContext(ctx, particleID, name, p.Parameter[name]); err != nil {
				return fmt.Errorf("failed to insert parameter %s: %w", name, err)
			}
		}
		for j, d := range p.AcceptedDistances {
			res, err := insertSample.ExecContext(ctx, particleID, d)
			if err != nil {
				return fmt.Errorf("failed to insert sample: %w", err)
			}
			if j >= len(p.AcceptedSumStats) {
				continue
			}
			sampleID, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to read sample id: %w", err)
			}
			stats := p.AcceptedSumStats[j]
			for _, name := range stats.Keys() {
				if _, err := insertSumStat.ExecContext(ctx, sampleID, name, stats[name]); err != nil {
					return fmt.Errorf("failed to insert summary statistic %s: %w", name, err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit population %d: %w", pop.T, err)
	}
	return nil
}

func (r *HistoryRepository) ListPopulations(ctx context.Context, analysisID int64) ([]domain.PopulationSummary, error) {
	return database.WithRetry(ctx, readRetries, func() ([]domain.PopulationSummary, error) { return r.listPopulations(ctx, analysisID) })
}

func (r *HistoryRepository) listPopulations(ctx context.Context, analysisID int64) ([]domain.PopulationSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT po.t, po.epsilon, po.nr_samples, po.population_end_time,
			(SELECT COUNT(*) FROM particles pa JOIN models mo ON pa.model_id = mo.id WHERE mo.population_id = po.id)
		FROM populations po
		WHERE po.abc_smc_id = ?
		ORDER BY po.t`, analysisID)
	if err != nil {
		return nil, fmt.Errorf("failed to list populations: %w", err)
	}
	defer rows.Close()

	var out []domain.PopulationSummary
	for rows.Next() {
		var s domain.PopulationSummary
		var endTime string
		if err := rows.Scan(&s.T, &s.Epsilon, &s.NrSimulations, &endTime, &s.NrParticles); err != nil {
			return nil, fmt.Errorf("failed to scan population: %w", err)
		}
		s.EndTime = util.ParseTime(endTime)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *HistoryRepository) ListModelProbabilities(ctx context.Context, analysisID int64, t *int) ([]domain.ModelProbability, error) {
	return database.WithRetry(ctx, readRetries, func() ([]domain.ModelProbability, error) { return r.listModelProbabilities(ctx, analysisID, t) })
}

func (r *HistoryRepository) listModelProbabilities(ctx context.Context, analysisID int64, t *int) ([]domain.ModelProbability, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT po.t, mo.m, mo.name, mo.p_model
		FROM models mo
		JOIN populations po ON mo.population_id = po.id
		WHERE po.abc_smc_id = ? AND (? IS NULL OR po.t = ?)
		ORDER BY po.t, mo.m`, analysisID, util.NullInt(t), util.NullInt(t))
	if err != nil {
		return nil, fmt.Errorf("failed to list model probabilities: %w", err)
	}
	defer rows.Close()

	var out []domain.ModelProbability
	for rows.Next() {
		var p domain.ModelProbability
		if err := rows.Scan(&p.T, &p.M, &p.Name, &p.Probability); err != nil {
			return nil, fmt.Errorf("failed to scan model probability: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// particleFilter restricts joined queries to one generation and optionally one model.
const particleFilter = `
	JOIN models mo ON pa.model_id = mo.id
	JOIN populations po ON mo.population_id = po.id
	WHERE po.abc_smc_id = ? AND po.t = ? AND (? IS NULL OR mo.m = ?)`

func (r *HistoryRepository) GetParticles(ctx context.Context, analysisID int64, t int, m *int) ([]domain.Particle, error) {
	return database.WithRetry(ctx, readRetries, func() ([]domain.Particle, error) { return r.getParticles(ctx, analysisID, t, m) })
}

func (r *HistoryRepository) getParticles(ctx context.Context, analysisID int64, t int, m *int) ([]domain.Particle, error) {
	args := []any{analysisID, t, util.NullInt(m), util.NullInt(m)}

	rows, err := r.db.QueryContext(ctx, `SELECT pa.id, mo.m, pa.w, pa.nr_simulations FROM particles pa`+particleFilter+` ORDER BY pa.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get particles: %w", err)
	}
	var particles []domain.Particle
	index := map[int64]int{}
	for rows.Next() {
		var id int64
		p := domain.Particle{Parameter: domain.Parameter{}, Accepted: true}
		if err := rows.Scan(&id, &p.M, &p.Weight, &p.NrSimulations); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan particle: %w", err)
		}
		index[id] = len(particles)
		particles = append(particles, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get particles: %w", err)
	}
	if len(particles) == 0 {
		return nil, nil
	}

	rows, err = r.db.QueryContext(ctx, `SELECT pr.particle_id, pr.name, pr.value FROM parameters pr JOIN particles pa ON pr.particle_id = pa.id`+particleFilter, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get parameters: %w", err)
	}
	for rows.Next() {
		var id int64
		var name string
		var value float64
		if err := rows.Scan(&id, &name, &value); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan parameter: %w", err)
		}
		particles[index[id]].Parameter[name] = value
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get parameters: %w", err)
	}

	rows, err = r.db.QueryContext(ctx, `SELECT s.id, s.particle_id, s.distance FROM samples s JOIN particles pa ON s.particle_id = pa.id`+particleFilter+` ORDER BY s.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get samples: %w", err)
	}
	type samplePos struct{ particle, sample int }
	samples := map[int64]samplePos{}
	for rows.Next() {
		var sampleID, particleID int64
		var d float64
		if err := rows.Scan(&sampleID, &particleID, &d); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		i := index[particleID]
		samples[sampleID] = samplePos{i, len(particles[i].AcceptedDistances)}
		particles[i].AcceptedDistances = append(particles[i].AcceptedDistances, d)
		particles[i].AcceptedSumStats = append(particles[i].AcceptedSumStats, domain.SumStat{})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get samples: %w", err)
	}

	rows, err = r.db.QueryContext(ctx, `
		SELECT ss.sample_id, ss.name, ss.value
		FROM summary_statistics ss
		JOIN samples s ON ss.sample_id = s.id
		JOIN particles pa ON s.particle_id = pa.id`+particleFilter, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get summary statistics: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sampleID int64
		var name string
		var value float64
		if err := rows.Scan(&sampleID, &name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan summary statistic: %w", err)
		}
		pos := samples[sampleID]
		particles[pos.particle].AcceptedSumStats[pos.sample][name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get summary statistics: %w", err)
	}
	return particles, nil
}

func (r *HistoryRepository) MaxT(ctx context.Context, analysisID int64) (int, error) {
	return database.WithRetry(ctx, readRetries, func() (int, error) { return r.maxT(ctx, analysisID) })
}

func (r *HistoryRepository) maxT(ctx context.Context, analysisID int64) (int, error) {
	var t sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT MAX(t) FROM populations WHERE abc_smc_id = ?`, analysisID).Scan(&t)
	if err != nil {
		return 0, fmt.Errorf("failed to get max generation: %w", err)
	}
	return util.IndexFromNull(t), nil
}
