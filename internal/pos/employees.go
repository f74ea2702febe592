package pos

import (
	"context"
	"encoding/json"

	"pos_data_layer/internal/backend"

	"go.uber.org/zap"
)

func (s *Service) GetEmployees(ctx context.Context) Result[[]Employee] {
	return run(ctx, s, "get employees", func(ctx context.Context, client backend.Backend) ([]Employee, error) {
		var employees []Employee
		if err := client.Select(ctx, backend.From(TableEmployees).Asc("lastname"), &employees); err != nil {
			return nil, err
		}
		return employees, nil
	})
}

func (s *Service) CreateEmployee(ctx context.Context, employee Employee) Result[[]Employee] {
	return run(ctx, s, "create employee", func(ctx context.Context, client backend.Backend) ([]Employee, error) {
		var created []Employee
		if err := client.Insert(ctx, TableEmployees, []Employee{employee}, &created); err != nil {
			return nil, err
		}
		return created, nil
	})
}

func (s *Service) UpdateEmployee(ctx context.Context, id int64, updates Fields) Result[[]Employee] {
	return run(ctx, s, "update employee", func(ctx context.Context, client backend.Backend) ([]Employee, error) {
		var updated []Employee
		filters := []backend.Filter{backend.Eq("id", id)}
		if err := client.Update(ctx, TableEmployees, filters, updates, &updated); err != nil {
			return nil, err
		}
		return updated, nil
	})
}

// DeleteEmployee also logs the client state and the raw response.
func (s *Service) DeleteEmployee(ctx context.Context, id int64) Result[Empty] {
	client, _ := s.source.Client()
	s.logger.Info("delete employee",
		zap.Bool("client_ready", client != nil),
		zap.Int64("id", id),
	)

	return run(ctx, s, "delete employee", func(ctx context.Context, client backend.Backend) (Empty, error) {
		var raw json.RawMessage
		err := client.Delete(ctx, TableEmployees, []backend.Filter{backend.Eq("id", id)}, &raw)
		s.logger.Info("delete employee response",
			zap.Int64("id", id),
			zap.ByteString("data", raw),
			zap.Error(err),
		)
		return Empty{}, err
	})
}
