package containerdeployment

import "fmt"

// fargateMemoryCeilings maps each valid Fargate task CPU unit value to the
// sorted list of memory (MiB) values ECS allows it to be paired with.
// Recovered verbatim from
// original_source/x8/compute/container_deployment/providers/_amazon_ecs.py's
// _convert_fargate_cpu_memory; the 8192/16384 CPU rows require platform
// version 1.4.0+. The ECS core passes no platform version on
// create-service, so the service gets ECS's default platform version.
var fargateMemoryCeilings = map[int][]int{
	256:  {512, 1024, 2048},
	512:  {1024, 2048, 3072, 4096},
	1024: {2048, 3072, 4096, 5120, 6144, 7168, 8192},
	2048: rangeStep(4096, 16384, 1024),
	4096: rangeStep(8192, 30720, 1024),
	8192: rangeStep(16384, 61440, 4096),
	16384: rangeStep(32768, 122880, 8192),
}

func rangeStep(start, stopInclusive, step int) []int {
	var out []int
	for v := start; v <= stopInclusive; v += step {
		out = append(out, v)
	}
	return out
}

var fargateCPUValues = []int{256, 512, 1024, 2048, 4096, 8192, 16384}

// QuantizeFargateCPUMemory rounds up an aggregate CPU-units/memory-MiB
// request to the nearest Fargate-legal (cpu, memory) pair. cpu and memory
// are already in ECS units (1024 CPU units = 1 vCPU, MiB).
func QuantizeFargateCPUMemory(cpu, memory int) (cpuUnits, memoryMiB int, err error) {
	for _, cpuVal := range fargateCPUValues {
		if cpu > cpuVal {
			continue
		}
		for _, mem := range fargateMemoryCeilings[cpuVal] {
			if memory <= mem {
				return cpuVal, mem, nil
			}
		}
		return 0, 0, fmt.Errorf("containerdeployment: memory %dMiB is too large for %d CPU units", memory, cpuVal)
	}
	return 0, 0, fmt.Errorf("containerdeployment: unsupported CPU value: %d", cpu)
}

// fargateCoresByUnit is the reverse mapping used when translating a live
// ECS task definition's cpu string back into model.Resources core counts.
var fargateCoresByUnit = map[int]float64{
	256:   0.25,
	512:   0.5,
	1024:  1.0,
	2048:  2.0,
	4096:  4.0,
	8192:  8.0,
	16384: 16.0,
}

// FargateUnitsToCores converts a task-level Fargate CPU-units value back
// to vCPU cores, falling back to a linear conversion for any non-standard
// value a caller passed directly to the ECS API.
func FargateUnitsToCores(cpuUnits int) float64 {
	if cores, ok := fargateCoresByUnit[cpuUnits]; ok {
		return cores
	}
	return float64(cpuUnits) / 1024.0
}

// CoresToFargateUnits is the forward conversion: vCPU cores to ECS CPU
// units (1 core = 1024 units), used before quantization.
func CoresToFargateUnits(cores float64) int {
	return int(cores * 1024)
}
