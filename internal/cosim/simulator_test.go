package cosim_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/packsim/internal/cellmodel"
	"github.com/san-kum/packsim/internal/cosim"
	"github.com/san-kum/packsim/internal/experiment"
	"github.com/san-kum/packsim/internal/netlist"
	"github.com/san-kum/packsim/internal/output"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

var packTopology = netlist.Topology{Np: 16, Ns: 2, Rb: 1e-4, Rc: 1e-2, Ri: 5e-2, V: 3.2, I: 80}

var cycle = []string{
	"Charge at 50 A for 30 minutes",
	"Rest for 15 minutes",
	"Discharge at 50 A for 30 minutes",
	"Rest for 30 minutes",
}

// Electrolyte concentrations of the reference 16p2s pack: two groups of
// cells start well above the rest.
var packConcentration = []float64{
	1000, 1000, 2000, 2000, 1000, 1000, 1000, 1000, 1000, 1000, 1000,
	1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000,
	1000, 3000, 3000, 3000, 1000, 1000, 1000, 1000, 1000, 1000,
}

func uniform(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func mustGrid(t netlist.Topology) *netlist.Netlist {
	nl, err := netlist.BuildGrid(t)
	Expect(err).NotTo(HaveOccurred())
	return nl
}

func mustSteps(steps ...string) *experiment.Stepper {
	s, err := experiment.Parse(steps, 10)
	Expect(err).NotTo(HaveOccurred())
	return s
}

func theveninFactory() cosim.CellFactory {
	return cellmodel.NewTheveninFactory(cellmodel.DefaultTheveninParams())
}

// failingCell delegates to a resistor cell until its n-th Advance.
type failingCell struct {
	cosim.Cell
	failOn int
	calls  int
}

func (c *failingCell) Advance(ctx context.Context, in cosim.StepInput) (cosim.StepOutput, error) {
	c.calls++
	if c.calls == c.failOn {
		return cosim.StepOutput{}, errors.New("solver did not converge")
	}
	return c.Cell.Advance(ctx, in)
}

type countingMetric struct{ n int }

func (m *countingMetric) Name() string           { return "samples" }
func (m *countingMetric) Observe(s cosim.Sample) { m.n++ }
func (m *countingMetric) Value() float64         { return float64(m.n) }
func (m *countingMetric) Reset()                 { m.n = 0 }

var _ = Describe("Simulator", func() {
	Describe("a 16p2s charge/rest/discharge/rest cycle", func() {
		var (
			series *output.Series
			sim    *cosim.Simulator
		)

		BeforeEach(func() {
			var err error
			sim, err = cosim.New(mustGrid(packTopology), mustSteps(cycle...), theveninFactory(),
				cosim.WithLogger(quiet),
				cosim.WithHeatTransfer(uniform(32, 10)),
				cosim.WithInitialConcentration(packConcentration),
				cosim.WithOutputs(cellmodel.VarTemperature, cellmodel.VarSoC))
			Expect(err).NotTo(HaveOccurred())

			series, err = sim.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
		})

		It("records every sample of every phase", func() {
			Expect(series.Complete).To(BeTrue())
			Expect(series.Err).To(BeNil())
			Expect(series.Len()).To(Equal(630))
			Expect(series.Time[0]).To(Equal(10.0))
			Expect(series.Time[179]).To(Equal(1800.0))
			Expect(series.Time[269]).To(Equal(2700.0))
			Expect(series.Time[449]).To(Equal(4500.0))
			Expect(series.Time[629]).To(Equal(6300.0))
		})

		It("holds the demanded pack current in every phase", func() {
			current := series.Pack[output.PackCurrent]
			for i, phase := range series.Phase {
				switch phase {
				case 0:
					Expect(current[i]).To(Equal(-50.0))
				case 2:
					Expect(current[i]).To(Equal(50.0))
				default:
					Expect(current[i]).To(BeNumerically("~", 0, 1e-9))
				}
			}
		})

		It("records a (time x cell) matrix for every variable", func() {
			Expect(series.Names()).To(Equal([]string{
				output.CellCurrent, output.TerminalVoltage, cellmodel.VarTemperature, cellmodel.VarSoC,
			}))
			for _, name := range series.Names() {
				m, ok := series.Variable(name)
				Expect(ok).To(BeTrue())
				Expect(m).To(HaveLen(630))
				Expect(m[0]).To(HaveLen(32))
			}
		})

		It("splits the pack current across each series layer", func() {
			currents, _ := series.Variable(output.CellCurrent)
			pack := series.Pack[output.PackCurrent]
			for i := range currents {
				for _, layer := range netlist.SeriesLayers(packTopology) {
					sum := 0.0
					for _, k := range layer {
						sum += currents[i][k]
					}
					Expect(sum).To(BeNumerically("~", pack[i], 1e-6*math.Max(1, math.Abs(pack[i]))))
				}
			}
		})

		It("returns the cells to their starting charge", func() {
			soc, _ := series.Variable(cellmodel.VarSoC)
			last := soc[len(soc)-1]
			for k := range last {
				Expect(last[k]).To(BeNumerically("~", cellmodel.DefaultTheveninParams().InitialSoC, 0.02))
			}
		})

		It("produces identical results when run again", func() {
			again, err := sim.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Time).To(Equal(series.Time))
			Expect(again.Pack).To(Equal(series.Pack))
			Expect(again.Cells).To(Equal(series.Cells))
		})
	})

	It("does not depend on the number of workers", func() {
		run := func(workers int) *output.Series {
			sim, err := cosim.New(mustGrid(netlist.Topology{Np: 4, Ns: 3, Rb: 1e-4, Rc: 1e-2, Ri: 5e-2, V: 3.2, I: 10}),
				mustSteps("Discharge at 10 A for 5 minutes", "Rest for 2 minutes"), theveninFactory(),
				cosim.WithLogger(quiet), cosim.WithWorkers(workers))
			Expect(err).NotTo(HaveOccurred())
			s, err := sim.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			return s
		}
		Expect(run(1).Cells).To(Equal(run(8).Cells))
	})

	Describe("closed-form packs of resistor cells", func() {
		topo := netlist.Topology{Np: 1, Ns: 1, Rb: 1e-4, Rc: 1e-2, Ri: 5e-2, V: 3.2, I: 1}
		factory := cellmodel.NewResistorFactory(cellmodel.ResistorParams{EMF: 3.2, Resistance: 5e-2})

		It("drives the pack voltage in constant-current phases", func() {
			sim, err := cosim.New(mustGrid(topo), mustSteps("Discharge at 10 A for 1 minute"), factory, cosim.WithLogger(quiet))
			Expect(err).NotTo(HaveOccurred())
			s, err := sim.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			for _, v := range s.Pack[output.PackVoltage] {
				Expect(v).To(BeNumerically("~", 3.2-10*(1e-2+5e-2), 1e-9))
			}
		})

		It("solves for the pack current in constant-voltage phases", func() {
			sim, err := cosim.New(mustGrid(topo), mustSteps("Hold at 3.0 V for 1 minute"), factory, cosim.WithLogger(quiet))
			Expect(err).NotTo(HaveOccurred())
			s, err := sim.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			for i, v := range s.Pack[output.PackCurrent] {
				Expect(v).To(BeNumerically("~", 0.2/6e-2, 1e-9))
				Expect(s.Pack[output.PackVoltage][i]).To(BeNumerically("~", 3.0, 1e-12))
			}
		})

		It("ends a phase at the sample that crosses its cutoff", func() {
			sim, err := cosim.New(mustGrid(topo),
				mustSteps("Discharge at 10 A for 10 minutes or until 3.15 V", "Rest for 30 seconds"),
				factory, cosim.WithLogger(quiet))
			Expect(err).NotTo(HaveOccurred())
			s, err := sim.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Complete).To(BeTrue())
			Expect(s.Time).To(Equal([]float64{10, 20, 30, 40}))
			Expect(s.Phase).To(Equal([]int{0, 1, 1, 1}))
			Expect(sim.Stepper().Reason(0)).To(Equal(experiment.ReasonCutoff))
		})
	})

	Describe("failures", func() {
		topo := netlist.Topology{Np: 2, Ns: 2, Rb: 1e-4, Rc: 1e-2, Ri: 5e-2, V: 3.2, I: 1}

		It("rejects per-cell vectors of the wrong length before building cells", func() {
			var built atomic.Int32
			factory := func(index int, init cosim.CellInit) (cosim.Cell, error) {
				built.Add(1)
				return cellmodel.NewResistor(cellmodel.DefaultResistorParams())
			}
			_, err := cosim.New(mustGrid(topo), mustSteps("Rest 1min"), factory,
				cosim.WithHeatTransfer([]float64{10, 10, 10}))
			Expect(err).To(MatchError(cosim.ErrConfiguration))

			_, err = cosim.New(mustGrid(topo), mustSteps("Rest 1min"), factory,
				cosim.WithInitialConcentration([]float64{1000, 1000, 1000, -1}))
			Expect(err).To(MatchError(cosim.ErrConfiguration))

			_, err = cosim.New(mustGrid(topo), mustSteps("Rest 1min"), factory, cosim.WithWorkers(-1))
			Expect(err).To(MatchError(cosim.ErrConfiguration))
			Expect(built.Load()).To(BeZero())
		})

		It("rejects outputs the cells cannot report", func() {
			sim, err := cosim.New(mustGrid(topo), mustSteps("Rest 1min"),
				cellmodel.NewResistorFactory(cellmodel.DefaultResistorParams()),
				cosim.WithLogger(quiet), cosim.WithOutputs(cellmodel.VarTemperature))
			Expect(err).NotTo(HaveOccurred())
			_, err = sim.Run(context.Background())
			Expect(err).To(MatchError(cosim.ErrConfiguration))
		})

		It("reports a singular network before running", func() {
			nl := netlist.New([]netlist.Element{
				{Desc: "V0", Node1: 1, Node2: 0, Value: 3.2},
				{Desc: "V1", Node1: 1, Node2: 0, Value: 3.2},
				{Desc: "Ri0", Node1: 1, Node2: 2, Value: 0.05},
				{Desc: "I0", Node1: 2, Node2: 0, Value: 1},
			})
			_, err := cosim.New(nl, mustSteps("Rest 1min"), theveninFactory())
			Expect(err).To(MatchError(cosim.ErrCircuitSingular))
		})

		It("reports a network singular only under voltage demand before running", func() {
			nl := netlist.New([]netlist.Element{
				{Desc: "V0", Node1: 1, Node2: 0, Value: 3.2},
				{Desc: "Ri0", Node1: 1, Node2: 2, Value: 0.05},
				{Desc: "V1", Node1: 2, Node2: 0, Value: 3.2},
				{Desc: "I0", Node1: 1, Node2: 0, Value: 1},
			})
			var built atomic.Int32
			factory := func(index int, init cosim.CellInit) (cosim.Cell, error) {
				built.Add(1)
				return cellmodel.NewResistor(cellmodel.DefaultResistorParams())
			}

			_, err := cosim.New(nl, mustSteps("Discharge at 1 A for 1 minute"), factory, cosim.WithLogger(quiet))
			Expect(err).NotTo(HaveOccurred())

			_, err = cosim.New(nl, mustSteps("Discharge at 1 A for 1 minute", "Hold at 3.2 V for 1 minute"), factory,
				cosim.WithLogger(quiet))
			Expect(err).To(MatchError(cosim.ErrCircuitSingular))
			Expect(built.Load()).To(BeZero())
		})

		It("reports a broken topology", func() {
			nl := netlist.New([]netlist.Element{
				{Desc: "V0", Node1: 1, Node2: 0, Value: 3.2},
				{Desc: "Ri0", Node1: 1, Node2: 2, Value: 0.05},
				{Desc: "I0", Node1: 3, Node2: 0, Value: 1},
			})
			_, err := cosim.New(nl, mustSteps("Rest 1min"), theveninFactory())
			Expect(err).To(MatchError(cosim.ErrTopology))
		})

		It("aborts on a cell failure and keeps the samples before it", func() {
			factory := func(index int, init cosim.CellInit) (cosim.Cell, error) {
				r, err := cellmodel.NewResistor(cellmodel.DefaultResistorParams())
				if err != nil || index != 3 {
					return r, err
				}
				return &failingCell{Cell: r, failOn: 6}, nil
			}
			sim, err := cosim.New(mustGrid(topo), mustSteps("Discharge at 2 A for 10 minutes"), factory, cosim.WithLogger(quiet))
			Expect(err).NotTo(HaveOccurred())

			s, err := sim.Run(context.Background())
			Expect(err).To(MatchError(cosim.ErrCellSolve))
			var stepErr *cosim.StepError
			Expect(errors.As(err, &stepErr)).To(BeTrue())
			Expect(stepErr.Cell).To(Equal(3))
			Expect(stepErr.Step).To(Equal(5))
			Expect(stepErr.Time).To(Equal(60.0))

			Expect(s.Complete).To(BeFalse())
			Expect(s.Err).To(MatchError(cosim.ErrCellSolve))
			Expect(s.Len()).To(Equal(5))
		})

		It("stops at a sample boundary when canceled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sim, err := cosim.New(mustGrid(topo), mustSteps("Discharge at 2 A for 10 minutes"), theveninFactory(), cosim.WithLogger(quiet))
			Expect(err).NotTo(HaveOccurred())
			seen := 0
			sim.AddObserver(cosim.ObserverFunc(func(s cosim.Sample) {
				seen++
				if seen == 10 {
					cancel()
				}
			}))

			s, err := sim.Run(ctx)
			Expect(err).To(MatchError(context.Canceled))
			Expect(s.Complete).To(BeFalse())
			Expect(s.Len()).To(Equal(10))
		})
	})

	It("passes heat transfer and concentration to every cell", func() {
		topo := netlist.Topology{Np: 2, Ns: 1, Rb: 1e-4, Rc: 1e-2, Ri: 5e-2, V: 3.2, I: 1}
		inits := make([]cosim.CellInit, 2)
		factory := func(index int, init cosim.CellInit) (cosim.Cell, error) {
			inits[index] = init
			return cellmodel.NewThevenin(index, cellmodel.DefaultTheveninParams(), init)
		}
		sim, err := cosim.New(mustGrid(topo), mustSteps("Rest 1min"), factory, cosim.WithLogger(quiet),
			cosim.WithHeatTransfer([]float64{5, 15}),
			cosim.WithInitialConcentration([]float64{900, 1100}))
		Expect(err).NotTo(HaveOccurred())
		_, err = sim.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())

		Expect(inits[0]).To(Equal(cosim.CellInit{HeatTransfer: 5, HasHeatTransfer: true, ElectrolyteConcentration: 900, HasConcentration: true}))
		Expect(inits[1].HeatTransfer).To(Equal(15.0))
		Expect(inits[1].ElectrolyteConcentration).To(Equal(1100.0))
	})

	It("feeds metrics and observers once per sample", func() {
		topo := netlist.Topology{Np: 2, Ns: 1, Rb: 1e-4, Rc: 1e-2, Ri: 5e-2, V: 3.2, I: 1}
		sim, err := cosim.New(mustGrid(topo), mustSteps("Discharge 1A 2min", "Rest 1min"), theveninFactory(), cosim.WithLogger(quiet))
		Expect(err).NotTo(HaveOccurred())
		m := &countingMetric{}
		sim.AddMetric(m)
		var last cosim.Sample
		sim.AddObserver(cosim.ObserverFunc(func(s cosim.Sample) { last = s }))

		s, err := sim.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(m.n).To(Equal(18))
		Expect(s.Metrics).To(HaveKeyWithValue("samples", 18.0))
		Expect(last.Step).To(Equal(17))
		Expect(last.Total).To(Equal(18))
		Expect(last.Phase).To(Equal(1))
	})
})
